package facts

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"riq/internal/walker"
)

// SQL DDL patterns, compiled once. Tolerant of double-quote, backtick,
// and bracket quoting plus schema-qualified names; the capture is the
// table identifier itself.
var (
	sqlCreateTablePattern = regexp.MustCompile(`(?i)\bCREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(?:["\x60\[]?\w+["\x60\]]?\.)?["\x60\[]?(\w+)["\x60\]]?`)
	sqlAlterTablePattern  = regexp.MustCompile(`(?i)\bALTER\s+TABLE\s+(?:["\x60\[]?\w+["\x60\]]?\.)?["\x60\[]?(\w+)["\x60\]]?`)

	prismaModelPattern      = regexp.MustCompile(`(?m)^\s*model\s+(\w+)\s*\{`)
	prismaDatasourcePattern = regexp.MustCompile(`datasource\s+\w+\s*\{[^}]*provider\s*=\s*"(\w+)"`)

	gormStructPattern        = regexp.MustCompile(`(?m)^type\s+(\w+)\s+struct\b`)
	sqlalchemyClassPattern   = regexp.MustCompile(`(?m)^class\s+(\w+)\([^)]*Base[^)]*\)\s*:`)
	sqlalchemyTablePattern   = regexp.MustCompile(`__tablename__\s*=\s*["'](\w+)["']`)
	djangoModelPattern       = regexp.MustCompile(`(?m)^class\s+(\w+)\(models\.Model\)`)
	typeormEntityPattern     = regexp.MustCompile(`@Entity\([^)]*\)\s*(?:export\s+)?class\s+(\w+)`)
	sequelizeDefinePattern   = regexp.MustCompile(`\.define\(\s*["'](\w+)["']`)
	activeRecordClassPattern = regexp.MustCompile(`(?m)^class\s+(\w+)\s*<\s*(?:ActiveRecord::Base|ApplicationRecord)`)
	railsCreateTablePattern  = regexp.MustCompile(`create_table\s+[:"'](\w+)`)
)

// prismaEngines maps prisma datasource providers to engine labels.
var prismaEngines = map[string]string{
	"postgresql":  "postgres",
	"postgres":    "postgres",
	"mysql":       "mysql",
	"sqlite":      "sqlite",
	"sqlserver":   "sqlserver",
	"mongodb":     "mongodb",
	"cockroachdb": "cockroachdb",
}

// engineDependencyHints maps dependency names seen in manifests to the
// engine they imply.
var engineDependencyHints = []struct {
	Token  string
	Engine string
}{
	{"psycopg2", "postgres"},
	{"mysql2", "mysql"},
	{"mongoose", "mongodb"},
	{"mongodb", "mongodb"},
	{"ioredis", "redis"},
	{"redis", "redis"},
	{"sqlite3", "sqlite"},
	{"mariadb", "mysql"},
	{"pg", "postgres"},
	{"mysql", "mysql"},
}

// composeImageEngines maps container image names to engines.
var composeImageEngines = []struct {
	Token  string
	Engine string
}{
	{"postgres", "postgres"},
	{"mysql", "mysql"},
	{"mariadb", "mysql"},
	{"mongo", "mongodb"},
	{"redis", "redis"},
}

var migrationDirCandidates = []string{"migrations", "db/migrate", "prisma/migrations", "alembic"}

// SchemaExtractor detects database surfaces: engines, ORMs, tables
// declared in DDL, and models declared through ORM conventions.
type SchemaExtractor struct{}

func (d *SchemaExtractor) Name() string { return "database" }

func (d *SchemaExtractor) Detect(ctx context.Context, src *Source) (*PartialFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &PartialFacts{}
	inv := src.Inventory

	d.extractSQL(src, p)
	d.extractPrisma(src, p)
	d.extractORMFingerprints(src, p)
	d.extractEngineHints(src, p)
	d.extractComposeEngines(src, p)

	for _, dir := range migrationDirCandidates {
		if inv.HasDir(dir) {
			p.Database.MigrationsDir = dir
			break
		}
	}

	sort.Strings(p.Database.Tables)
	return p, nil
}

// extractSQL scans schema-category files and anything that looks like a
// migration for CREATE TABLE and ALTER TABLE statements.
func (d *SchemaExtractor) extractSQL(src *Source, p *PartialFacts) {
	seen := make(map[string]struct{})
	scan := func(fi walker.FileInfo) {
		if _, ok := seen[fi.Path]; ok {
			return
		}
		seen[fi.Path] = struct{}{}

		data, err := src.Read(fi)
		if err != nil {
			p.warnf("schema file %s unreadable: %v", fi.Path, err)
			return
		}
		content := string(data)
		matched := false
		for _, m := range sqlCreateTablePattern.FindAllStringSubmatch(content, -1) {
			p.Database.Tables = append(p.Database.Tables, strings.ToLower(m[1]))
			matched = true
		}
		for _, m := range sqlAlterTablePattern.FindAllStringSubmatch(content, -1) {
			p.Database.Tables = append(p.Database.Tables, strings.ToLower(m[1]))
			matched = true
		}
		if matched && fi.Ext == ".sql" {
			p.Database.SchemaFiles = append(p.Database.SchemaFiles, fi.Path)
		}
	}

	for _, fi := range src.Inventory.ByCategory[walker.CategorySchema] {
		if fi.Ext == ".sql" {
			scan(fi)
		}
	}
	for _, fi := range src.Inventory.Files {
		if fi.Ext == ".sql" && strings.Contains(fi.Path, "migration") {
			scan(fi)
		}
	}
}

// extractPrisma reads schema.prisma files for models and the datasource
// provider. Model names keep their declared casing.
func (d *SchemaExtractor) extractPrisma(src *Source, p *PartialFacts) {
	for _, fi := range src.Inventory.ByName("schema.prisma") {
		data, err := src.Read(fi)
		if err != nil {
			p.warnf("prisma schema %s unreadable: %v", fi.Path, err)
			continue
		}
		content := string(data)

		p.Database.SchemaFiles = append(p.Database.SchemaFiles, fi.Path)
		p.Database.ORMs = append(p.Database.ORMs, "prisma")

		for _, m := range prismaModelPattern.FindAllStringSubmatch(content, -1) {
			p.Database.Models = append(p.Database.Models, m[1])
		}
		if m := prismaDatasourcePattern.FindStringSubmatch(content); m != nil {
			if engine, ok := prismaEngines[strings.ToLower(m[1])]; ok {
				p.Database.Engines = append(p.Database.Engines, engine)
			}
		}
	}
}

// ormScanLimit bounds how many source files one fingerprint family
// reads. The walker already caps the inventory; this keeps a polyglot
// repository from paying for every family.
const ormScanLimit = 200

// extractORMFingerprints checks source files for ORM conventions in a
// fixed order. Each matching family contributes its ORM label plus the
// models or tables it can see.
func (d *SchemaExtractor) extractORMFingerprints(src *Source, p *PartialFacts) {
	goFiles := src.Inventory.ByExt(".go")
	pyFiles := src.Inventory.ByExt(".py")
	tsFiles := append(src.Inventory.ByExt(".ts"), src.Inventory.ByExt(".js")...)
	rbFiles := src.Inventory.ByExt(".rb")

	scanned := 0
	readAll := func(fi walker.FileInfo) string {
		if scanned >= ormScanLimit {
			return ""
		}
		scanned++
		data, err := src.Read(fi)
		if err != nil {
			return ""
		}
		return string(data)
	}

	for _, fi := range goFiles {
		content := readAll(fi)
		if !strings.Contains(content, "gorm.Model") && !strings.Contains(content, "gorm:\"") {
			continue
		}
		p.Database.ORMs = append(p.Database.ORMs, "gorm")
		for _, m := range gormStructPattern.FindAllStringSubmatch(content, -1) {
			p.Database.Models = append(p.Database.Models, m[1])
		}
	}

	scanned = 0
	for _, fi := range pyFiles {
		content := readAll(fi)
		if strings.Contains(content, "declarative_base") || strings.Contains(content, "__tablename__") {
			p.Database.ORMs = append(p.Database.ORMs, "sqlalchemy")
			for _, m := range sqlalchemyClassPattern.FindAllStringSubmatch(content, -1) {
				p.Database.Models = append(p.Database.Models, m[1])
			}
			for _, m := range sqlalchemyTablePattern.FindAllStringSubmatch(content, -1) {
				p.Database.Tables = append(p.Database.Tables, strings.ToLower(m[1]))
			}
		}
		if strings.Contains(content, "models.Model") {
			p.Database.ORMs = append(p.Database.ORMs, "django")
			for _, m := range djangoModelPattern.FindAllStringSubmatch(content, -1) {
				p.Database.Models = append(p.Database.Models, m[1])
			}
		}
	}

	scanned = 0
	for _, fi := range tsFiles {
		content := readAll(fi)
		if strings.Contains(content, "@Entity") {
			p.Database.ORMs = append(p.Database.ORMs, "typeorm")
			for _, m := range typeormEntityPattern.FindAllStringSubmatch(content, -1) {
				p.Database.Models = append(p.Database.Models, m[1])
			}
		}
		if strings.Contains(content, "sequelize") && strings.Contains(content, ".define(") {
			p.Database.ORMs = append(p.Database.ORMs, "sequelize")
			for _, m := range sequelizeDefinePattern.FindAllStringSubmatch(content, -1) {
				p.Database.Models = append(p.Database.Models, m[1])
			}
		}
	}

	scanned = 0
	for _, fi := range rbFiles {
		content := readAll(fi)
		if strings.Contains(content, "ActiveRecord::Base") || strings.Contains(content, "ApplicationRecord") || strings.Contains(content, "create_table") {
			p.Database.ORMs = append(p.Database.ORMs, "activerecord")
			for _, m := range activeRecordClassPattern.FindAllStringSubmatch(content, -1) {
				p.Database.Models = append(p.Database.Models, m[1])
			}
			for _, m := range railsCreateTablePattern.FindAllStringSubmatch(content, -1) {
				p.Database.Tables = append(p.Database.Tables, strings.ToLower(m[1]))
			}
		}
	}
}

// extractEngineHints infers engines from dependency names that appear
// in manifest files. Token matching is on quoted names so substrings
// like "postgraphile" do not false-positive.
func (d *SchemaExtractor) extractEngineHints(src *Source, p *PartialFacts) {
	for _, fi := range src.Inventory.ByCategory[walker.CategoryManifest] {
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		content := string(data)
		for _, hint := range engineDependencyHints {
			if strings.Contains(content, `"`+hint.Token+`"`) || strings.Contains(content, hint.Token+"==") || strings.Contains(content, hint.Token+">=") {
				p.Database.Engines = append(p.Database.Engines, hint.Engine)
			}
		}
	}
}

// extractComposeEngines parses docker-compose files for well-known
// database images.
func (d *SchemaExtractor) extractComposeEngines(src *Source, p *PartialFacts) {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		fi, ok := src.Inventory.FirstByName(name)
		if !ok {
			continue
		}
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		var compose struct {
			Services map[string]struct {
				Image string `yaml:"image"`
			} `yaml:"services"`
		}
		if err := yaml.Unmarshal(data, &compose); err != nil {
			p.warnf("compose file %s unparseable: %v", fi.Path, err)
			continue
		}
		names := make([]string, 0, len(compose.Services))
		for name := range compose.Services {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			image := strings.ToLower(compose.Services[name].Image)
			for _, hint := range composeImageEngines {
				if strings.Contains(image, hint.Token) {
					p.Database.Engines = append(p.Database.Engines, hint.Engine)
				}
			}
		}
	}
}
