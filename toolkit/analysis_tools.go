package toolkit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/martinemde/codeagent/agentloop"
)

func analysisTools(env *Environment) []tool {
	pathOnly := schema([]string{"path"}, param{"path", "string", "Go source file (find_dependencies also accepts a directory)."})
	return []tool{
		{
			def: agentloop.ToolDefinition{
				Name:        "parse_ast",
				Description: "Parse a Go source file and list its package, imports, types, functions and package-level variables as JSON.",
				Parameters:  pathOnly,
			},
			fn: env.parseAST,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "get_function_signature",
				Description: "Show the signature and doc comment of a Go function or method (Type.Method).",
				Parameters: schema([]string{"path", "function_name"},
					param{"path", "string", "Go source file."},
					param{"function_name", "string", "Function name, or Type.Method for methods."}),
			},
			fn: env.functionSignature,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "find_dependencies",
				Description: "List the imports of a Go file or package directory grouped into standard library, module-local and third-party.",
				Parameters:  pathOnly,
			},
			fn: env.findDependencies,
		},
		{
			def: agentloop.ToolDefinition{
				Name:        "get_code_metrics",
				Description: "Count lines (code, comment, blank), functions and cyclomatic complexity of a Go source file.",
				Parameters:  pathOnly,
			},
			fn: env.codeMetrics,
		},
	}
}

func (e *Environment) parseGoFile(args map[string]any) (string, *token.FileSet, *ast.File, []byte, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return "", nil, nil, nil, err
	}
	if filepath.Ext(path) != ".go" {
		return "", nil, nil, nil, fmt.Errorf("%s is not a Go source file", path)
	}
	resolved := e.Resolve(path)
	src, err := os.ReadFile(resolved)
	if err != nil {
		return "", nil, nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, resolved, src, parser.ParseComments)
	if err != nil {
		return "", nil, nil, nil, fmt.Errorf("syntax error: %w", err)
	}
	return path, fset, file, src, nil
}

type importInfo struct {
	Path string `json:"path"`
	Name string `json:"name,omitempty"`
	Line int    `json:"line"`
}

type typeInfo struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Line    int      `json:"line"`
	Methods []string `json:"methods,omitempty"`
}

type funcInfo struct {
	Name     string `json:"name"`
	Receiver string `json:"receiver,omitempty"`
	Params   string `json:"params"`
	Results  string `json:"results,omitempty"`
	Line     int    `json:"line"`
}

type valueInfo struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
	Line int    `json:"line"`
}

type astSummary struct {
	File      string       `json:"file"`
	Package   string       `json:"package"`
	Imports   []importInfo `json:"imports"`
	Types     []typeInfo   `json:"types"`
	Functions []funcInfo   `json:"functions"`
	Globals   []valueInfo  `json:"global_variables"`
}

func (e *Environment) parseAST(_ context.Context, args map[string]any) (string, error) {
	path, fset, file, _, err := e.parseGoFile(args)
	if err != nil {
		return "", err
	}
	out := astSummary{
		File:      path,
		Package:   file.Name.Name,
		Imports:   []importInfo{},
		Types:     []typeInfo{},
		Functions: []funcInfo{},
		Globals:   []valueInfo{},
	}
	for _, imp := range file.Imports {
		p, _ := strconv.Unquote(imp.Path.Value)
		info := importInfo{Path: p, Line: fset.Position(imp.Pos()).Line}
		if imp.Name != nil {
			info.Name = imp.Name.Name
		}
		out.Imports = append(out.Imports, info)
	}

	methods := map[string][]string{}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					out.Types = append(out.Types, typeInfo{
						Name: s.Name.Name,
						Kind: typeKind(s.Type),
						Line: fset.Position(s.Pos()).Line,
					})
				case *ast.ValueSpec:
					for _, name := range s.Names {
						if name.Name == "_" {
							continue
						}
						out.Globals = append(out.Globals, valueInfo{
							Name: name.Name,
							Kind: d.Tok.String(),
							Line: fset.Position(name.Pos()).Line,
						})
					}
				}
			}
		case *ast.FuncDecl:
			fn := funcInfo{
				Name:    d.Name.Name,
				Params:  fieldList(d.Type.Params),
				Results: fieldList(d.Type.Results),
				Line:    fset.Position(d.Pos()).Line,
			}
			if d.Recv != nil && len(d.Recv.List) > 0 {
				fn.Receiver = types.ExprString(d.Recv.List[0].Type)
				base := strings.TrimPrefix(fn.Receiver, "*")
				if i := strings.IndexByte(base, '['); i >= 0 {
					base = base[:i]
				}
				methods[base] = append(methods[base], d.Name.Name)
			}
			out.Functions = append(out.Functions, fn)
		}
	}
	for i := range out.Types {
		out.Types[i].Methods = methods[out.Types[i].Name]
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func typeKind(expr ast.Expr) string {
	switch expr.(type) {
	case *ast.StructType:
		return "struct"
	case *ast.InterfaceType:
		return "interface"
	case *ast.FuncType:
		return "func"
	case *ast.MapType:
		return "map"
	case *ast.ArrayType:
		return "slice"
	case *ast.ChanType:
		return "chan"
	default:
		return "named"
	}
}

func fieldList(fl *ast.FieldList) string {
	if fl == nil || len(fl.List) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fl.List))
	for _, f := range fl.List {
		typ := types.ExprString(f.Type)
		if len(f.Names) == 0 {
			parts = append(parts, typ)
			continue
		}
		names := make([]string, len(f.Names))
		for i, n := range f.Names {
			names[i] = n.Name
		}
		parts = append(parts, strings.Join(names, ", ")+" "+typ)
	}
	return strings.Join(parts, ", ")
}

func (e *Environment) functionSignature(_ context.Context, args map[string]any) (string, error) {
	name, err := requireString(args, "function_name")
	if err != nil {
		return "", err
	}
	path, fset, file, _, err := e.parseGoFile(args)
	if err != nil {
		return "", err
	}
	recv, fn, isMethod := strings.Cut(name, ".")
	if !isMethod {
		fn, recv = recv, ""
	}

	for _, decl := range file.Decls {
		d, ok := decl.(*ast.FuncDecl)
		if !ok || d.Name.Name != fn {
			continue
		}
		if recv != "" {
			if d.Recv == nil || len(d.Recv.List) == 0 {
				continue
			}
			r := strings.TrimPrefix(types.ExprString(d.Recv.List[0].Type), "*")
			if i := strings.IndexByte(r, '['); i >= 0 {
				r = r[:i]
			}
			if r != recv {
				continue
			}
		} else if d.Recv != nil {
			continue
		}

		sig := *d
		sig.Body = nil
		sig.Doc = nil
		var buf bytes.Buffer
		if err := format.Node(&buf, fset, &sig); err != nil {
			return "", fmt.Errorf("render signature: %w", err)
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s:%d\n", path, fset.Position(d.Pos()).Line)
		if d.Doc != nil {
			for _, line := range strings.Split(strings.TrimRight(d.Doc.Text(), "\n"), "\n") {
				fmt.Fprintf(&sb, "// %s\n", line)
			}
		}
		sb.WriteString(buf.String())
		return sb.String(), nil
	}
	return "", fmt.Errorf("function %s not found in %s", name, path)
}

type dependencyReport struct {
	Path       string   `json:"path"`
	Module     string   `json:"module,omitempty"`
	Stdlib     []string `json:"stdlib"`
	Local      []string `json:"local"`
	ThirdParty []string `json:"third_party"`
}

func (e *Environment) findDependencies(_ context.Context, args map[string]any) (string, error) {
	path, err := requireString(args, "path")
	if err != nil {
		return "", err
	}
	resolved := e.Resolve(path)
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	var files []string
	if info.IsDir() {
		matches, _ := filepath.Glob(filepath.Join(resolved, "*.go"))
		files = matches
		if len(files) == 0 {
			return "", fmt.Errorf("no Go files in %s", path)
		}
	} else {
		if filepath.Ext(resolved) != ".go" {
			return "", fmt.Errorf("%s is not a Go source file", path)
		}
		files = []string{resolved}
	}

	dir := resolved
	if !info.IsDir() {
		dir = filepath.Dir(resolved)
	}
	module := modulePath(dir)

	seen := map[string]bool{}
	fset := token.NewFileSet()
	for _, f := range files {
		file, err := parser.ParseFile(fset, f, nil, parser.ImportsOnly)
		if err != nil {
			return "", fmt.Errorf("syntax error: %w", err)
		}
		for _, imp := range file.Imports {
			p, _ := strconv.Unquote(imp.Path.Value)
			seen[p] = true
		}
	}

	report := dependencyReport{Path: path, Module: module, Stdlib: []string{}, Local: []string{}, ThirdParty: []string{}}
	for p := range seen {
		switch {
		case module != "" && (p == module || strings.HasPrefix(p, module+"/")):
			report.Local = append(report.Local, p)
		case isStdlib(p):
			report.Stdlib = append(report.Stdlib, p)
		default:
			report.ThirdParty = append(report.ThirdParty, p)
		}
	}
	sort.Strings(report.Stdlib)
	sort.Strings(report.Local)
	sort.Strings(report.ThirdParty)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// isStdlib applies the go tool's rule: standard library import paths have
// no dot in their first element.
func isStdlib(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}

// modulePath walks up from dir to the nearest go.mod and returns its module
// path.
func modulePath(dir string) string {
	for {
		if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
			scanner := bufio.NewScanner(bytes.NewReader(data))
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if rest, ok := strings.CutPrefix(line, "module "); ok {
					return strings.Trim(strings.TrimSpace(rest), `"`)
				}
			}
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

type funcMetric struct {
	Name       string `json:"name"`
	Lines      int    `json:"lines"`
	Complexity int    `json:"complexity"`
}

type codeMetrics struct {
	File          string       `json:"file"`
	TotalLines    int          `json:"total_lines"`
	CodeLines     int          `json:"code_lines"`
	CommentLines  int          `json:"comment_lines"`
	BlankLines    int          `json:"blank_lines"`
	Functions     int          `json:"functions"`
	Types         int          `json:"types"`
	MaxComplexity int          `json:"max_complexity"`
	AvgComplexity float64      `json:"avg_complexity"`
	PerFunction   []funcMetric `json:"per_function"`
}

func (e *Environment) codeMetrics(_ context.Context, args map[string]any) (string, error) {
	path, fset, file, src, err := e.parseGoFile(args)
	if err != nil {
		return "", err
	}
	m := codeMetrics{File: path, PerFunction: []funcMetric{}}

	lines := strings.Split(strings.TrimSuffix(string(src), "\n"), "\n")
	m.TotalLines = len(lines)

	// A line counts as a comment when a comment covers it from its first
	// non-blank column.
	commentLines := map[int]bool{}
	for _, group := range file.Comments {
		for _, c := range group.List {
			start := fset.Position(c.Pos())
			end := fset.Position(c.End()).Line
			if start.Line <= len(lines) && strings.TrimSpace(lines[start.Line-1][:start.Column-1]) == "" {
				commentLines[start.Line] = true
			}
			for l := start.Line + 1; l <= end; l++ {
				commentLines[l] = true
			}
		}
	}
	for i, line := range lines {
		switch {
		case strings.TrimSpace(line) == "":
			m.BlankLines++
		case commentLines[i+1]:
			m.CommentLines++
		default:
			m.CodeLines++
		}
	}

	total := 0
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			name := d.Name.Name
			if d.Recv != nil && len(d.Recv.List) > 0 {
				name = strings.TrimPrefix(types.ExprString(d.Recv.List[0].Type), "*") + "." + name
			}
			c := cyclomatic(d)
			m.PerFunction = append(m.PerFunction, funcMetric{
				Name:       name,
				Lines:      fset.Position(d.End()).Line - fset.Position(d.Pos()).Line + 1,
				Complexity: c,
			})
			total += c
			m.MaxComplexity = max(m.MaxComplexity, c)
		case *ast.GenDecl:
			if d.Tok == token.TYPE {
				m.Types += len(d.Specs)
			}
		}
	}
	m.Functions = len(m.PerFunction)
	if m.Functions > 0 {
		m.AvgComplexity = float64(total) / float64(m.Functions)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// cyclomatic counts decision points plus one.
func cyclomatic(fn *ast.FuncDecl) int {
	c := 1
	if fn.Body == nil {
		return c
	}
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			c++
		case *ast.CaseClause:
			if x.List != nil {
				c++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				c++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				c++
			}
		}
		return true
	})
	return c
}
