package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ridoystarlord/schemasync/config"
	"github.com/spf13/cobra"
)

var initStructs bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new schemasync project",
	Long: `Initialize a new schemasync project: schemasync.yaml plus an example
declaration, either schema.yaml (default) or annotated Go structs.

Examples:
  schemasync init                 # schemasync.yaml + schema.yaml
  schemasync init --structs       # schemasync.yaml + models/models.go`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := writeNew("schemasync.yaml", config.Template()); err != nil {
			return err
		}

		if initStructs {
			if err := os.MkdirAll(cfg.Schema.Models, 0755); err != nil {
				return fmt.Errorf("creating models directory: %w", err)
			}
			if err := writeNew(filepath.Join(cfg.Schema.Models, "models.go"), structsTemplate); err != nil {
				return err
			}
			fmt.Println("📝 Edit the structs and set schema.source: structs in schemasync.yaml")
		} else {
			if err := writeNew(cfg.Schema.File, yamlTemplate); err != nil {
				return err
			}
			fmt.Printf("📝 Edit %s to define your database schema\n", cfg.Schema.File)
		}
		fmt.Println("🚀 Run 'schemasync diff' to compare it with your database")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initStructs, "structs", false, "Scaffold Go structs instead of schema.yaml")
}

// writeNew creates path with content, leaving an existing file untouched.
func writeNew(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("⏭️  %s already exists, skipped\n", path)
		return nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	fmt.Println("✅ Created", path)
	return nil
}

const yamlTemplate = `# Declared schema. Unnamed constraints and indexes are named
# PK_/FK_/UQ_/CHK_/IDX_<table>_<columns>.
extensions:
  - name: pgcrypto

enums:
  - name: post_status
    values: [draft, published, archived]

functions:
  - name: touch_updated_at
    returns: trigger
    language: plpgsql
    body: |
      BEGIN
        NEW.updated_at = now();
        RETURN NEW;
      END;

tables:
  - name: users
    columns:
      - name: id
        type: uuid
        primary: true
        default: gen_random_uuid()
      - name: email
        type: varchar(255)
        unique: true
      - name: name
        type: text
      - name: created_at
        type: timestamptz
        default: now()
      - name: updated_at
        type: timestamptz
        default: now()
    triggers:
      - name: users_touch_updated_at
        timing: before
        events: [update]
        function: touch_updated_at

  - name: posts
    columns:
      - name: id
        type: bigserial
        primary: true
      - name: author_id
        type: uuid
        index: true
        foreign_key:
          references_table: users
          on_delete: cascade
      - name: title
        type: text
      - name: status
        type: post_status
        default: "'draft'"
      - name: published_at
        type: timestamptz
        nullable: true
    checks:
      - expression: status <> 'published' OR published_at IS NOT NULL
    indexes:
      - columns: [status, published_at]
        where: published_at IS NOT NULL
`

const structsTemplate = `package models

import "time"

// User is the users table.
//
//schema:table users
type User struct {
	ID        string    ` + "`schema:\"type:uuid;primary;default:gen_random_uuid()\"`" + `
	Email     string    ` + "`schema:\"type:varchar(255);unique\"`" + `
	Name      string    ` + "`schema:\"type:text\"`" + `
	CreatedAt time.Time ` + "`schema:\"default:now()\"`" + `
}

// Post is the posts table.
//
//schema:table posts
//schema:check - length(title) > 0
//schema:index - author_id,created_at
type Post struct {
	ID          int64      ` + "`schema:\"type:bigserial;primary\"`" + `
	AuthorID    string     ` + "`schema:\"type:uuid;fk:users.id:cascade\"`" + `
	Title       string     ` + "`schema:\"type:text\"`" + `
	CreatedAt   time.Time  ` + "`schema:\"default:now()\"`" + `
	PublishedAt *time.Time ` + "`schema:\"nullable\"`" + `
}
`
