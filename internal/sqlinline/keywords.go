package sqlinline

const QSelectNextKeyword = `--sql ea382676-3523-4930-8f05-2b24a2e9eb58
select id::text, keyword
from keywords
where processed_at is null
order by created_at asc, id asc
limit 1;
`

const QMarkKeywordProcessed = `--sql 0be7cc2b-4a24-4d4e-a0fd-0105f5db70b6
update keywords
set processed_at = now(),
    status = $2::text,
    message = nullif($3::text, '')
where id = $1::uuid;
`

const QFindKeyword = `--sql 8b79d749-407d-42d4-9918-598ac5e3e7d3
select id::text, keyword
from keywords
where lower(keyword) = lower($1::text)
order by created_at desc
limit 1;
`

const QInsertKeyword = `--sql 1793fa29-e6f9-4a2b-bb40-c19c9bb247b2
insert into keywords (id, keyword, created_at)
values (gen_random_uuid(), $1::text, now())
on conflict (keyword) do nothing;
`
