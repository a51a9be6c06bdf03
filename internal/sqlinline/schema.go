package sqlinline

// QEnsureSchema creates the tables used by the Postgres-backed stores.
const QEnsureSchema = `--sql e76207a2-d797-42df-9b01-df9fc812872b
create table if not exists keywords (
    id uuid primary key,
    keyword text not null unique,
    status text,
    message text,
    processed_at timestamptz,
    created_at timestamptz not null default now()
);
create index if not exists keywords_pending_idx on keywords (created_at) where processed_at is null;
create table if not exists artifacts (
    path text primary key,
    payload jsonb not null,
    tags jsonb not null default '{}'::jsonb,
    version bigint not null default 1,
    written_at timestamptz not null default now()
);
create table if not exists provider_tokens (
    provider text primary key,
    token text not null,
    properties jsonb not null default '{}'::jsonb,
    updated_at timestamptz not null default now()
);
`
