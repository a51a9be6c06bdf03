package sqlinline

const QUpsertArtifact = `--sql dd69b049-d364-4528-a647-fd7d43941b7c
insert into artifacts (path, payload, tags, version, written_at)
values ($1::text, $2::jsonb, coalesce($3::jsonb, '{}'::jsonb), 1, $4::timestamptz)
on conflict (path) do update set
    payload = excluded.payload,
    tags = excluded.tags,
    version = artifacts.version + 1,
    written_at = excluded.written_at
returning version;
`

const QSelectArtifact = `--sql 442db4f2-5842-4997-83ae-b5b515ad710a
select payload, tags, version, written_at
from artifacts
where path = $1::text;
`

const QListArtifacts = `--sql dc508269-7d10-4c8f-93cc-f7173bd9e36b
select path
from artifacts
where starts_with(path, $1::text)
order by path asc;
`
