package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed records.sql
var recordsSQL string

//go:embed embeddings.sql
var embeddingsSQL string

// Function lists for verification
var RecordsFunctions = []string{
	"init_ingestion_records",
	"claim_ingestion",
	"select_active_ingestion",
	"select_ingestion_attempts",
	"update_ingestion_status",
	"reset_ingestion_records",
}

var EmbeddingsFunctions = []string{
	"init_embeddings",
	"insert_embedding",
	"select_embeddings_by_similarity",
	"select_embeddings_by_fingerprint",
	"delete_embeddings_by_fingerprint",
	"count_embeddings_by_fingerprint",
	"select_embedding_models",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadRecordsSql loads ledger-related SQL functions
func LoadRecordsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, RecordsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing records functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(recordsSQL)
	if err != nil {
		return fmt.Errorf("error executing records SQL: %w", err)
	}

	exist, err := checkFunctions(db, RecordsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL records functions loaded successfully")
	return nil
}

// LoadEmbeddingsSql loads vector-index-related SQL functions
func LoadEmbeddingsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, EmbeddingsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing embeddings functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(embeddingsSQL)
	if err != nil {
		return fmt.Errorf("error executing embeddings SQL: %w", err)
	}

	exist, err := checkFunctions(db, EmbeddingsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL embeddings functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadRecordsSql(db, force); err != nil {
		return err
	}

	if err := LoadEmbeddingsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
