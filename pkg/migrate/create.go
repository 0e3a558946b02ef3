package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/fabrevive/pickup-payments/pkg/db/models"
)

const versionLayout = "20060102150405"

var ledgerTemplate = template.Must(template.New("ledger").Parse(`-- +goose Up
-- +goose StatementBegin
-- {{.Slug}}: ALTER TABLE {{.Table}} ...
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- revert {{.Slug}} on {{.Table}}
-- +goose StatementEnd
`))

// NewLedgerMigration scaffolds <dir>/<version>_<slug>.sql for a change to the
// payment event ledger. version is at in UTC. An existing file with the same
// version is an error, so two scaffolds in the same second do not collide.
func NewLedgerMigration(dir, name string, at time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	slug := migrationSlug(name)
	if slug == "" {
		return "", fmt.Errorf("migration name %q has no letters or digits", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := at.UTC().Format(versionLayout)
	taken, err := filepath.Glob(filepath.Join(dir, version+"_*.sql"))
	if err != nil {
		return "", err
	}
	if len(taken) > 0 {
		return "", fmt.Errorf("migration version %s already used by %s", version, filepath.Base(taken[0]))
	}

	path := filepath.Join(dir, version+"_"+slug+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration: %w", err)
	}
	defer f.Close()

	data := struct{ Slug, Table string }{Slug: slug, Table: models.PaymentEvent{}.TableName()}
	if err := ledgerTemplate.Execute(f, data); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

// migrationSlug lowercases name and joins its alphanumeric runs with underscores.
func migrationSlug(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
	return strings.Join(words, "_")
}
