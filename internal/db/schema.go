package db

// SchemaSQL defines the job table. payload holds the JSON job record; status
// and expires_at are duplicated out of it for filtering and expiry sweeps.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS payload ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON job TYPE string;
    DEFINE FIELD IF NOT EXISTS expires_at ON job TYPE datetime;
    DEFINE FIELD IF NOT EXISTS updated_at ON job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS job_expires_at ON job FIELDS expires_at;
    DEFINE INDEX IF NOT EXISTS job_status ON job FIELDS status;
`
