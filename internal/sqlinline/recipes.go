package sqlinline

const QEnsureRecipesTable = `--sql 6b1d2f0e-93a4-4c7e-8f21-0d5e7a9c3b14
create table if not exists recipes (
    id uuid primary key,
    idempotency_key text not null unique,
    batch_id text not null,
    task_id text not null,
    title text not null,
    meal_type text not null default '',
    body jsonb not null,
    image_key text not null default '',
    image_url text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists recipes_batch_id_idx on recipes (batch_id);
`

const QUpsertRecipe = `--sql 2c8e4a71-5f0b-4d93-b6e2-7a1c9d0f4e58
insert into recipes (id, idempotency_key, batch_id, task_id, title, meal_type, body, image_key, image_url)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (idempotency_key) do update
set title = excluded.title,
    meal_type = excluded.meal_type,
    body = excluded.body,
    image_key = excluded.image_key,
    image_url = excluded.image_url,
    updated_at = now()
returning id::text;
`

const QGetRecipeByID = `--sql 9f3a6c20-1e7d-4b85-a0c4-5d2e8b7f1a93
select id::text, body
from recipes
where id = $1;
`

const QListRecipesByBatch = `--sql d47b0e12-8a6c-4f39-9e15-3b0c7d2a6f81
select id::text, body
from recipes
where batch_id = $1
order by created_at asc;
`
