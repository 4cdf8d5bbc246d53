package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- CUSTOMER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS customer SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON customer TYPE string;
    DEFINE FIELD IF NOT EXISTS email ON customer TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON customer TYPE datetime DEFAULT time::now();

    -- ==========================================================================
    -- CONVERSATION TABLE (summary document per support thread)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    -- Link only, no REFERENCE: a removed customer leaves a dangling link that
    -- readers skip.
    DEFINE FIELD IF NOT EXISTS customer ON conversation TYPE option<record<customer>>;
    DEFINE FIELD IF NOT EXISTS status ON conversation TYPE string DEFAULT "open"
        ASSERT $value IN ["open", "closed"];
    DEFINE FIELD IF NOT EXISTS last_message ON conversation TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS last_sender ON conversation TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS unread_by_admin ON conversation TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS unread_by_customer ON conversation TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS operator_online ON conversation TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS created_at ON conversation TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE datetime DEFAULT time::now();
    -- Timestamp of the message the summary was taken from; NONE until the first one.
    DEFINE FIELD IF NOT EXISTS last_message_at ON conversation TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS conversation_updated ON conversation FIELDS updated_at;

    -- ==========================================================================
    -- MESSAGE TABLE
    -- ==========================================================================
    -- IDs are ULIDs, so ordering by id follows arrival order.
    DEFINE TABLE IF NOT EXISTS message SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation ON message TYPE record<conversation>;
    DEFINE FIELD IF NOT EXISTS text ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS sender ON message TYPE string
        ASSERT $value IN ["admin", "customer"];
    DEFINE FIELD IF NOT EXISTS sender_id ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS sender_name ON message TYPE string;
    DEFINE FIELD IF NOT EXISTS timestamp ON message TYPE datetime VALUE time::now() READONLY;
    DEFINE FIELD IF NOT EXISTS read ON message TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS message_conversation ON message FIELDS conversation, timestamp;
`
