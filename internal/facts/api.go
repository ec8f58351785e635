package facts

import (
	"context"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"riq/internal/walker"
)

// Route extraction patterns, one family per registration shape. Paths
// must start with a slash so map lookups like m.Get("key") never match.
var (
	// method-chained: router.get('/users', ...), r.Get("/x"), app.POST("/x")
	chainedRoutePattern = regexp.MustCompile(`\b\w+\.(?i:(get|post|put|delete|patch|head|options))\s*\(\s*["'\x60](/[^"'\x60]*)["'\x60]`)

	// decorator: @Get('/users'), @Delete()
	decoratorRoutePattern = regexp.MustCompile(`@(Get|Post|Put|Delete|Patch|Head|Options)\(\s*(?:["'\x60]([^"'\x60)]*)["'\x60])?\s*\)`)

	// decorator: @app.route("/x", methods=["POST", "PUT"])
	flaskRoutePattern = regexp.MustCompile(`@\w+\.route\(\s*["']([^"']+)["'](?:[^)]*methods\s*=\s*\[([^\]]+)\])?`)

	// router-prefixed: Route::get('/x', ...)
	laravelRoutePattern = regexp.MustCompile(`Route::(?i:(get|post|put|delete|patch|any))\(\s*["']([^"']+)["']`)

	// router-prefixed: http.HandleFunc("GET /users", ...), mux.HandleFunc("/x", ...)
	handleFuncPattern = regexp.MustCompile(`\b\w+\.(?:HandleFunc|Handle)\(\s*"((?:(?:GET|POST|PUT|DELETE|PATCH|HEAD|OPTIONS)\s+)?/[^"]*)"`)

	// rails routes.rb: get "/users" / post '/orders'
	railsRoutePattern = regexp.MustCompile(`(?m)^\s*(get|post|put|patch|delete)\s+["']([^"']+)["']`)

	gqlTagPattern = regexp.MustCompile("\\bgql\\s*\x60")
)

// routeSourceExts are the extensions the route scan reads.
var routeSourceExts = map[string]struct{}{
	".js": {}, ".jsx": {}, ".mjs": {}, ".cjs": {},
	".ts": {}, ".tsx": {},
	".py": {}, ".go": {}, ".rb": {}, ".php": {},
	".java": {}, ".kt": {}, ".cs": {},
}

// apiFrameworkHints maps dependency tokens to framework labels,
// checked in order; the first hit per ecosystem wins.
var apiFrameworkHints = []struct {
	Ecosystem string
	Token     string
	Framework string
}{
	{"node", "@nestjs/core", "nestjs"},
	{"node", "fastify", "fastify"},
	{"node", "koa", "koa"},
	{"node", "express", "express"},
	{"python", "django", "django"},
	{"python", "fastapi", "fastapi"},
	{"python", "flask", "flask"},
	{"go", "github.com/gin-gonic/gin", "gin"},
	{"go", "github.com/labstack/echo", "echo"},
	{"go", "github.com/go-chi/chi", "chi"},
	{"go", "github.com/gofiber/fiber", "fiber"},
	{"ruby", "rails", "rails"},
	{"php", "laravel/framework", "laravel"},
	{"java", "spring-boot", "spring"},
}

// apiFrameworkPatterns are boundary-aware forms of the hint tokens so
// manifests in any quoting style match without false-positiving on
// substrings. A trailing dash still matches: framework plugins prefix
// the framework name.
var apiFrameworkPatterns = compileHintPatterns()

func compileHintPatterns() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, len(apiFrameworkHints))
	for i, hint := range apiFrameworkHints {
		patterns[i] = regexp.MustCompile(`(?im)(?:^|["'\s/>=])` + regexp.QuoteMeta(hint.Token) + `(?:$|["'\s=<>~:,\-/])`)
	}
	return patterns
}

var openAPIBasenames = map[string]struct{}{
	"openapi.yaml": {}, "openapi.yml": {}, "openapi.json": {},
	"swagger.yaml": {}, "swagger.yml": {}, "swagger.json": {},
}

// APISurfaceExtractor detects API styles, frameworks, declared routes,
// and API contract files.
type APISurfaceExtractor struct{}

func (d *APISurfaceExtractor) Name() string { return "api" }

func (d *APISurfaceExtractor) Detect(ctx context.Context, src *Source) (*PartialFacts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &PartialFacts{}

	d.extractRoutes(ctx, src, p)
	d.detectFrameworks(src, p)
	d.detectStyles(src, p)
	d.collectSpecFiles(src, p)

	if len(p.API.Routes) > 0 {
		p.API.Styles = append([]string{"rest"}, p.API.Styles...)
	}
	return p, nil
}

// extractRoutes scans source files for route registrations across the
// three shapes. Path parameters are preserved verbatim.
func (d *APISurfaceExtractor) extractRoutes(ctx context.Context, src *Source, p *PartialFacts) {
	for _, fi := range src.Inventory.ByCategory[walker.CategorySource] {
		if err := ctx.Err(); err != nil {
			return
		}
		if _, ok := routeSourceExts[fi.Ext]; !ok {
			continue
		}
		data, err := src.Read(fi)
		if err != nil {
			p.warnf("route scan skipped %s: %v", fi.Path, err)
			continue
		}
		content := string(data)

		for _, m := range chainedRoutePattern.FindAllStringSubmatch(content, -1) {
			p.API.Routes = append(p.API.Routes, Route{
				Method: strings.ToUpper(m[1]),
				Path:   m[2],
				File:   fi.Path,
			})
		}
		for _, m := range decoratorRoutePattern.FindAllStringSubmatch(content, -1) {
			path := m[2]
			if path == "" {
				path = "/"
			}
			p.API.Routes = append(p.API.Routes, Route{
				Method: strings.ToUpper(m[1]),
				Path:   path,
				File:   fi.Path,
			})
		}
		for _, m := range flaskRoutePattern.FindAllStringSubmatch(content, -1) {
			for _, method := range splitFlaskMethods(m[2]) {
				p.API.Routes = append(p.API.Routes, Route{
					Method: method,
					Path:   m[1],
					File:   fi.Path,
				})
			}
		}
		for _, m := range laravelRoutePattern.FindAllStringSubmatch(content, -1) {
			p.API.Routes = append(p.API.Routes, Route{
				Method: strings.ToUpper(m[1]),
				Path:   m[2],
				File:   fi.Path,
			})
		}
		for _, m := range handleFuncPattern.FindAllStringSubmatch(content, -1) {
			method, path := splitMuxPattern(m[1])
			p.API.Routes = append(p.API.Routes, Route{
				Method: method,
				Path:   path,
				File:   fi.Path,
			})
		}
		if strings.HasSuffix(fi.Path, "routes.rb") {
			for _, m := range railsRoutePattern.FindAllStringSubmatch(content, -1) {
				p.API.Routes = append(p.API.Routes, Route{
					Method: strings.ToUpper(m[1]),
					Path:   m[2],
					File:   fi.Path,
				})
			}
		}
	}
}

// splitFlaskMethods parses the methods=["GET", "POST"] list. An absent
// list means flask's default of GET.
func splitFlaskMethods(list string) []string {
	if strings.TrimSpace(list) == "" {
		return []string{"GET"}
	}
	var methods []string
	for _, part := range strings.Split(list, ",") {
		m := strings.ToUpper(strings.Trim(strings.TrimSpace(part), `"'`))
		if m != "" {
			methods = append(methods, m)
		}
	}
	if len(methods) == 0 {
		return []string{"GET"}
	}
	return methods
}

// splitMuxPattern splits a Go 1.22 mux pattern like "GET /users" into
// method and path. Method-less patterns answer any verb.
func splitMuxPattern(pattern string) (method, path string) {
	if idx := strings.IndexByte(pattern, ' '); idx > 0 {
		return pattern[:idx], strings.TrimSpace(pattern[idx+1:])
	}
	return "ANY", pattern
}

// detectFrameworks matches dependency tokens in manifest contents. The
// hint table is ordered so the most specific token wins per ecosystem.
func (d *APISurfaceExtractor) detectFrameworks(src *Source, p *PartialFacts) {
	matched := make(map[string]bool)
	for _, fi := range src.Inventory.ByCategory[walker.CategoryManifest] {
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		for i, hint := range apiFrameworkHints {
			if matched[hint.Ecosystem] {
				continue
			}
			if apiFrameworkPatterns[i].Match(data) {
				p.API.Frameworks = append(p.API.Frameworks, hint.Framework)
				matched[hint.Ecosystem] = true
			}
		}
	}
}

// detectStyles accumulates non-REST styles. REST itself is claimed by
// Detect when routes were found.
func (d *APISurfaceExtractor) detectStyles(src *Source, p *PartialFacts) {
	inv := src.Inventory

	graphql := len(inv.ByExt(".graphql")) > 0 || len(inv.ByExt(".gql")) > 0
	grpc := len(inv.ByExt(".proto")) > 0

	if !graphql || !grpc {
		for _, fi := range inv.ByCategory[walker.CategoryManifest] {
			data, err := src.Read(fi)
			if err != nil {
				continue
			}
			content := string(data)
			if strings.Contains(content, `"graphql"`) || strings.Contains(content, "apollo") {
				graphql = true
			}
			if strings.Contains(content, "grpc") {
				grpc = true
			}
		}
	}
	if !graphql {
		for _, fi := range inv.ByCategory[walker.CategorySource] {
			if fi.Ext != ".ts" && fi.Ext != ".js" && fi.Ext != ".tsx" && fi.Ext != ".jsx" {
				continue
			}
			data, err := src.Read(fi)
			if err != nil {
				continue
			}
			if gqlTagPattern.Match(data) {
				graphql = true
				break
			}
		}
	}

	if graphql {
		p.API.Styles = append(p.API.Styles, "graphql")
	}
	if grpc {
		p.API.Styles = append(p.API.Styles, "grpc")
	}
}

// collectSpecFiles records OpenAPI and Swagger documents. Known
// basenames are trusted; other yaml and json candidates are sniffed
// for a top-level openapi or swagger key.
func (d *APISurfaceExtractor) collectSpecFiles(src *Source, p *PartialFacts) {
	for _, fi := range src.Inventory.Files {
		base := fi.Path
		if idx := strings.LastIndex(fi.Path, "/"); idx >= 0 {
			base = fi.Path[idx+1:]
		}
		lower := strings.ToLower(base)

		if _, ok := openAPIBasenames[lower]; ok {
			p.API.SpecFiles = append(p.API.SpecFiles, fi.Path)
			continue
		}
		if fi.Ext != ".yaml" && fi.Ext != ".yml" {
			continue
		}
		if !strings.Contains(lower, "api") && !strings.Contains(lower, "swagger") {
			continue
		}
		data, err := src.Read(fi)
		if err != nil {
			continue
		}
		var doc struct {
			OpenAPI string `yaml:"openapi"`
			Swagger string `yaml:"swagger"`
		}
		if yaml.Unmarshal(data, &doc) == nil && (doc.OpenAPI != "" || doc.Swagger != "") {
			p.API.SpecFiles = append(p.API.SpecFiles, fi.Path)
		}
	}
}
