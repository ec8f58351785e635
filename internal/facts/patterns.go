package facts

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"riq/internal/walker"
)

// eventDrivenHints are broker dependency tokens that mark a repository
// as event-driven.
var eventDrivenHints = []string{
	"kafkajs", "kafka-go", "sarama", "confluent-kafka",
	"amqplib", "rabbitmq", "amqp091",
	"nats.go", "nats-py", `"nats"`,
}

var testingHints = []struct {
	Token string
	Label string
}{
	{"vitest", "vitest"},
	{"jest", "jest"},
	{"mocha", "mocha"},
	{"pytest", "pytest"},
	{"rspec", "rspec"},
	{"junit", "junit"},
	{"stretchr/testify", "go-test"},
}

var lintHints = []struct {
	Token string
	Label string
}{
	{"eslint", "eslint"},
	{"prettier", "prettier"},
	{"ruff", "ruff"},
	{"golangci", "golangci-lint"},
}

// PatternClassifier detects architectural conventions: service
// topology, CI providers, containerization, IaC, testing and lint
// tooling.
type PatternClassifier struct{}

func (d *PatternClassifier) Name() string { return "patterns" }

func (d *PatternClassifier) Detect(ctx context.Context, src *Source) (*PartialFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &PartialFacts{}

	d.classifyArchitecture(src, p)
	d.detectCI(src, p)
	d.detectContainerization(src, p)
	d.detectIaC(src, p)
	d.detectTestingAndLint(src, p)

	return p, nil
}

// classifyArchitecture accumulates topology labels. Microservices and
// monolith are mutually exclusive; the rest stack.
func (d *PatternClassifier) classifyArchitecture(src *Source, p *PartialFacts) {
	inv := src.Inventory

	microservices := false
	if n := composeServiceCount(src); n > 2 {
		microservices = true
	}
	if !microservices && inv.HasDir("services") {
		manifestsUnderServices := 0
		for _, fi := range inv.ByCategory[walker.CategoryManifest] {
			if strings.HasPrefix(fi.Path, "services/") {
				manifestsUnderServices++
			}
		}
		if manifestsUnderServices >= 2 {
			microservices = true
		}
	}

	if microservices {
		p.Patterns.Architecture = append(p.Patterns.Architecture, "microservices")
	} else if len(inv.ByCategory[walker.CategoryManifest]) > 0 {
		p.Patterns.Architecture = append(p.Patterns.Architecture, "monolith")
	}

	serverless := false
	for _, name := range []string{"serverless.yml", "serverless.yaml", "netlify.toml", "vercel.json"} {
		if _, ok := inv.FirstByName(name); ok {
			serverless = true
			break
		}
	}
	if serverless || inv.HasDir("functions") {
		p.Patterns.Architecture = append(p.Patterns.Architecture, "serverless")
	}

	for _, fi := range inv.ByCategory[walker.CategoryManifest] {
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		content := string(data)
		for _, hint := range eventDrivenHints {
			if strings.Contains(content, hint) {
				p.Patterns.Architecture = append(p.Patterns.Architecture, "event-driven")
				return
			}
		}
	}
}

// composeServiceCount parses the first compose file found and returns
// its service count, zero when absent or unparseable.
func composeServiceCount(src *Source) int {
	for _, name := range []string{"docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml"} {
		fi, ok := src.Inventory.FirstByName(name)
		if !ok {
			continue
		}
		data, err := src.Read(fi)
		if err != nil {
			return 0
		}
		var compose struct {
			Services map[string]yaml.Node `yaml:"services"`
		}
		if yaml.Unmarshal(data, &compose) != nil {
			return 0
		}
		return len(compose.Services)
	}
	return 0
}

// detectCI recognizes CI providers. Workflow files must parse as yaml
// with a jobs key before github-actions is claimed.
func (d *PatternClassifier) detectCI(src *Source, p *PartialFacts) {
	inv := src.Inventory

	for _, fi := range inv.Files {
		if !strings.HasPrefix(fi.Path, ".github/workflows/") {
			continue
		}
		if fi.Ext != ".yml" && fi.Ext != ".yaml" {
			continue
		}
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		var workflow struct {
			Jobs map[string]yaml.Node `yaml:"jobs"`
		}
		if err := yaml.Unmarshal(data, &workflow); err != nil {
			p.warnf("workflow %s unparseable: %v", fi.Path, err)
			continue
		}
		if len(workflow.Jobs) > 0 {
			p.Patterns.CI = append(p.Patterns.CI, "github-actions")
			break
		}
	}

	if _, ok := inv.FirstByName(".gitlab-ci.yml"); ok {
		p.Patterns.CI = append(p.Patterns.CI, "gitlab-ci")
	}
	if _, ok := inv.FirstByName("Jenkinsfile"); ok {
		p.Patterns.CI = append(p.Patterns.CI, "jenkins")
	}
	for _, fi := range inv.Files {
		if fi.Path == ".circleci/config.yml" {
			p.Patterns.CI = append(p.Patterns.CI, "circleci")
			break
		}
	}
	if _, ok := inv.FirstByName("azure-pipelines.yml"); ok {
		p.Patterns.CI = append(p.Patterns.CI, "azure-pipelines")
	}
}

func (d *PatternClassifier) detectContainerization(src *Source, p *PartialFacts) {
	inv := src.Inventory
	for _, name := range []string{"Dockerfile", "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml", "Containerfile"} {
		if _, ok := inv.FirstByName(name); ok {
			p.Patterns.Containerized = true
			return
		}
	}
}

// detectIaC recognizes infrastructure-as-code surfaces. Kubernetes
// manifests are sniffed for apiVersion plus kind; the scan is capped
// so a config-heavy repository stays cheap.
func (d *PatternClassifier) detectIaC(src *Source, p *PartialFacts) {
	inv := src.Inventory

	if len(inv.ByExt(".tf")) > 0 {
		p.Patterns.IaC = append(p.Patterns.IaC, "terraform")
	}
	if _, ok := inv.FirstByName("Pulumi.yaml"); ok {
		p.Patterns.IaC = append(p.Patterns.IaC, "pulumi")
	}
	if _, ok := inv.FirstByName("Chart.yaml"); ok {
		p.Patterns.IaC = append(p.Patterns.IaC, "helm")
	}

	const sniffLimit = 25
	sniffed := 0
	k8s, cloudformation := false, false
	for _, fi := range inv.ByCategory[walker.CategoryConfig] {
		if k8s && cloudformation {
			break
		}
		if fi.Ext != ".yaml" && fi.Ext != ".yml" {
			continue
		}
		if sniffed >= sniffLimit {
			break
		}
		sniffed++
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		var doc struct {
			APIVersion            string `yaml:"apiVersion"`
			Kind                  string `yaml:"kind"`
			AWSTemplateFormatVers string `yaml:"AWSTemplateFormatVersion"`
		}
		if yaml.Unmarshal(data, &doc) != nil {
			continue
		}
		if doc.APIVersion != "" && doc.Kind != "" && doc.Kind != "Chart" {
			k8s = true
		}
		if doc.AWSTemplateFormatVers != "" {
			cloudformation = true
		}
	}
	if k8s {
		p.Patterns.IaC = append(p.Patterns.IaC, "kubernetes")
	}
	if cloudformation {
		p.Patterns.IaC = append(p.Patterns.IaC, "cloudformation")
	}
}

// detectTestingAndLint matches tool tokens in manifests and well-known
// config files.
func (d *PatternClassifier) detectTestingAndLint(src *Source, p *PartialFacts) {
	inv := src.Inventory

	var manifestContent strings.Builder
	for _, fi := range inv.ByCategory[walker.CategoryManifest] {
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		manifestContent.Write(data)
		manifestContent.WriteByte('\n')
	}
	content := manifestContent.String()

	for _, hint := range testingHints {
		if strings.Contains(content, hint.Token) {
			p.Patterns.Testing = append(p.Patterns.Testing, hint.Label)
		}
	}
	for _, hint := range lintHints {
		if strings.Contains(content, hint.Token) {
			p.Patterns.Lint = append(p.Patterns.Lint, hint.Label)
		}
	}

	// Config files count even without a manifest entry.
	for _, fi := range inv.Files {
		base := fi.Path
		if idx := strings.LastIndex(fi.Path, "/"); idx >= 0 {
			base = fi.Path[idx+1:]
		}
		switch {
		case strings.HasPrefix(base, "jest.config"):
			p.Patterns.Testing = append(p.Patterns.Testing, "jest")
		case strings.HasPrefix(base, "vitest.config"):
			p.Patterns.Testing = append(p.Patterns.Testing, "vitest")
		case base == "pytest.ini" || base == "conftest.py":
			p.Patterns.Testing = append(p.Patterns.Testing, "pytest")
		case strings.HasPrefix(base, ".eslintrc") || strings.HasPrefix(base, "eslint.config"):
			p.Patterns.Lint = append(p.Patterns.Lint, "eslint")
		case strings.HasPrefix(base, ".prettierrc"):
			p.Patterns.Lint = append(p.Patterns.Lint, "prettier")
		case base == "ruff.toml" || base == ".ruff.toml":
			p.Patterns.Lint = append(p.Patterns.Lint, "ruff")
		case base == ".golangci.yml" || base == ".golangci.yaml":
			p.Patterns.Lint = append(p.Patterns.Lint, "golangci-lint")
		}
	}

	if hasGoTests(inv) {
		p.Patterns.Testing = append(p.Patterns.Testing, "go-test")
	}
}

func hasGoTests(inv *walker.Inventory) bool {
	for _, fi := range inv.ByExt(".go") {
		if strings.HasSuffix(fi.Path, "_test.go") {
			return true
		}
	}
	return false
}
