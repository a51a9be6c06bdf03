package sqlinline

const QSelectProviderToken = `--sql 3f0c9b1e-52a4-4c6e-9d7b-81e4a6c2d590
select token
from provider_tokens
where provider = lower($1::text);
`

// QUpsertProviderToken replaces the token and merges properties into the
// existing ones.
const QUpsertProviderToken = `--sql c41d7e28-9a6b-4f03-b5e2-0d96f8a7143c
insert into provider_tokens (provider, token, properties, updated_at)
values (lower($1::text), $2::text, coalesce($3::jsonb, '{}'::jsonb), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = provider_tokens.properties || excluded.properties,
    updated_at = now();
`
