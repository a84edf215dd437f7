// Package javascript normalizes Tree-sitter JavaScript syntax trees into the
// engine's structural representation. The converter is deliberately lossy:
// shapes the engine has no operator for are emitted as neutral blocks so
// traversal still reaches every call and assignment inside them.
package javascript

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/ir"
)

// ModuleFunction is the name of the synthetic function holding a file's
// top-level statements.
const ModuleFunction = "<module>"

// Parser converts JavaScript sources into analyzable functions. Each
// ParseFile call uses its own Tree-sitter parser instance, so a Parser is
// safe for concurrent use.
type Parser struct {
	logger *zap.Logger
}

func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("js_parser")}
}

// ParseFile parses one source file and returns every function found,
// including the synthetic module-level function. A file that fails to
// parse yields an error; individual malformed functions yield entries with
// a nil body so the engine can count them as skipped.
func (p *Parser) ParseFile(ctx context.Context, filename string, source []byte) ([]*ir.Function, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	defer tree.Close()

	c := &converter{filename: filename, source: source, logger: p.logger}
	fns := c.collect(tree.RootNode())
	p.logger.Debug("Parsed source file",
		zap.String("file", filename),
		zap.Int("functions", len(fns)),
	)
	return fns, nil
}

type converter struct {
	filename string
	source   []byte
	logger   *zap.Logger

	fns []*ir.Function
}

// collect finds every function definition in the tree and wraps the
// remaining top-level statements in the synthetic module function.
func (c *converter) collect(root *sitter.Node) []*ir.Function {
	var topLevel []*ir.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if c.tryFunction(child) {
			continue
		}
		if stmt := c.stmt(child); stmt != nil {
			topLevel = append(topLevel, stmt)
		}
	}

	module := &ir.Function{
		ID:       c.filename + ":" + ModuleFunction,
		Name:     ModuleFunction,
		File:     c.filename,
		Language: "javascript",
		Body:     topLevel,
		Pos:      c.pos(root),
	}
	if topLevel == nil {
		module.Body = []*ir.Node{}
	}
	return append([]*ir.Function{module}, c.fns...)
}

// tryFunction consumes a node when it declares a named function, returning
// true if the statement should not also appear in the enclosing body.
func (c *converter) tryFunction(node *sitter.Node) bool {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration":
		name := c.text(node.ChildByFieldName("name"))
		c.addFunction(name, node)
		return true

	case "export_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if c.tryFunction(node.NamedChild(i)) {
				return true
			}
		}
	}
	return false
}

// scanNested picks up function definitions nested inside ordinary
// statements (class bodies, callbacks bound to names).
func (c *converter) scanNested(node *sitter.Node) {
	if node == nil {
		return
	}
	switch node.Type() {
	case "method_definition":
		c.addFunction(c.text(node.ChildByFieldName("name")), node)
		return
	case "field_definition":
		value := node.ChildByFieldName("value")
		if value != nil && isFunctionNode(value) {
			c.addFunction(c.text(node.ChildByFieldName("property")), value)
			return
		}
	case "variable_declarator":
		value := node.ChildByFieldName("value")
		if value != nil && isFunctionNode(value) {
			c.addFunction(c.text(node.ChildByFieldName("name")), value)
			return
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c.scanNested(node.NamedChild(i))
	}
}

func isFunctionNode(node *sitter.Node) bool {
	switch node.Type() {
	case "function", "function_expression", "arrow_function", "generator_function":
		return true
	}
	return false
}

func (c *converter) addFunction(name string, fnNode *sitter.Node) {
	pos := c.pos(fnNode)
	id := fmt.Sprintf("%s:%s", c.filename, name)
	if name == "" {
		name = fmt.Sprintf("anon@%d", pos.Line)
		id = fmt.Sprintf("%s:%s", c.filename, name)
	}

	params, prelude := c.params(fnNode)
	fn := &ir.Function{
		ID:       id,
		Name:     name,
		File:     c.filename,
		Language: "javascript",
		Params:   params,
		Pos:      pos,
	}

	body := fnNode.ChildByFieldName("body")
	switch {
	case body == nil:
		// Declared but bodiless; the engine counts it as skipped.
		fn.Body = nil
	case body.Type() == "statement_block":
		fn.Body = append(prelude, c.stmts(body)...)
	default:
		// Expression-bodied arrow function: the expression is the return
		// value.
		fn.Body = append(prelude, &ir.Node{
			Kind:  ir.KindReturn,
			Pos:   c.pos(body),
			Value: c.expr(body),
		})
	}
	c.fns = append(c.fns, fn)
}

// params converts a function's parameter list. Destructured parameters get
// a synthetic name plus a prelude statement rebinding the pattern from it,
// so taint seeded on the parameter reaches the bindings.
func (c *converter) params(fnNode *sitter.Node) ([]ir.Parameter, []*ir.Node) {
	paramsNode := fnNode.ChildByFieldName("parameters")
	if paramsNode == nil {
		paramsNode = fnNode.ChildByFieldName("formal_parameters")
	}
	if paramsNode == nil {
		// Single-parameter arrow function without parentheses.
		if single := fnNode.ChildByFieldName("parameter"); single != nil {
			return []ir.Parameter{{Name: c.text(single)}}, nil
		}
		return nil, nil
	}

	var params []ir.Parameter
	var prelude []*ir.Node
	for i := 0; i < int(paramsNode.NamedChildCount()); i++ {
		pnode := paramsNode.NamedChild(i)

		// Unwrap defaults and rest markers down to the binding.
		for {
			if pnode.Type() == "assignment_pattern" {
				pnode = pnode.ChildByFieldName("left")
				continue
			}
			if pnode.Type() == "rest_parameter" && pnode.NamedChildCount() > 0 {
				pnode = pnode.NamedChild(0)
				continue
			}
			break
		}

		switch pnode.Type() {
		case "identifier":
			params = append(params, ir.Parameter{Name: c.text(pnode)})

		case "object_pattern", "array_pattern":
			synthetic := fmt.Sprintf("arg%d", len(params))
			params = append(params, ir.Parameter{Name: synthetic})
			prelude = append(prelude, &ir.Node{
				Kind:   ir.KindVarDecl,
				Pos:    c.pos(pnode),
				Target: c.pattern(pnode),
				Value:  &ir.Node{Kind: ir.KindIdent, Pos: c.pos(pnode), Name: synthetic},
			})

		default:
			params = append(params, ir.Parameter{Name: c.text(pnode)})
		}
	}
	return params, prelude
}

// stmts converts the named children of a block-like node.
func (c *converter) stmts(node *sitter.Node) []*ir.Node {
	var out []*ir.Node
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if c.tryFunction(child) {
			continue
		}
		if isFunctionNode(child) {
			c.addFunction("", child)
			continue
		}
		if s := c.stmt(child); s != nil {
			out = append(out, s)
		}
	}
	return out
}

// stmt converts one statement. Control flow the engine does not model
// becomes a block over its pieces so both branches accumulate state.
func (c *converter) stmt(node *sitter.Node) *ir.Node {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "expression_statement":
		if node.NamedChildCount() == 0 {
			return nil
		}
		return c.stmt(node.NamedChild(0))

	case "lexical_declaration", "variable_declaration":
		var decls []*ir.Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			d := node.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			name := d.ChildByFieldName("name")
			value := d.ChildByFieldName("value")
			if name == nil || value == nil {
				continue
			}
			if isFunctionNode(value) {
				c.addFunction(c.text(name), value)
				continue
			}
			decls = append(decls, &ir.Node{
				Kind:   ir.KindVarDecl,
				Pos:    c.pos(d),
				Target: c.target(name),
				Value:  c.expr(value),
			})
		}
		if len(decls) == 1 {
			return decls[0]
		}
		if decls == nil {
			return nil
		}
		return &ir.Node{Kind: ir.KindBlock, Pos: c.pos(node), Body: decls}

	case "assignment_expression", "augmented_assignment_expression":
		return &ir.Node{
			Kind:   ir.KindAssign,
			Pos:    c.pos(node),
			Target: c.target(node.ChildByFieldName("left")),
			Value:  c.expr(node.ChildByFieldName("right")),
		}

	case "return_statement":
		var value *ir.Node
		if node.NamedChildCount() > 0 {
			value = c.expr(node.NamedChild(0))
		}
		return &ir.Node{Kind: ir.KindReturn, Pos: c.pos(node), Value: value}

	case "if_statement":
		body := []*ir.Node{}
		if cond := node.ChildByFieldName("condition"); cond != nil {
			if e := c.stmt(cond); e != nil {
				body = append(body, e)
			}
		}
		if cons := node.ChildByFieldName("consequence"); cons != nil {
			body = append(body, c.branchOf(cons))
		}
		if alt := node.ChildByFieldName("alternative"); alt != nil {
			body = append(body, c.branchOf(alt))
		}
		return &ir.Node{Kind: ir.KindBlock, Pos: c.pos(node), Body: body}

	case "catch_clause", "switch_case", "switch_default":
		return c.branchOf(node)

	case "for_statement", "for_in_statement", "while_statement":
		// The body may run zero times, so treat the loop as a conditional
		// arm. A do-while body always runs at least once and stays neutral.
		return c.branchOf(node)

	case "statement_block", "else_clause", "try_statement",
		"finally_clause", "do_statement", "switch_statement", "switch_body",
		"labeled_statement", "parenthesized_expression":
		return c.blockOf(node)

	case "call_expression", "new_expression", "await_expression",
		"member_expression", "subscript_expression", "binary_expression",
		"ternary_expression", "template_string", "sequence_expression",
		"unary_expression", "update_expression", "identifier":
		return c.expr(node)

	case "throw_statement":
		if node.NamedChildCount() > 0 {
			return c.stmt(node.NamedChild(0))
		}
		return nil

	case "export_statement":
		var body []*ir.Node
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if s := c.stmt(node.NamedChild(i)); s != nil {
				body = append(body, s)
			}
		}
		if len(body) == 1 {
			return body[0]
		}
		if body == nil {
			return nil
		}
		return &ir.Node{Kind: ir.KindBlock, Pos: c.pos(node), Body: body}

	case "class_declaration":
		c.scanNested(node)
		return nil

	case "function", "function_expression", "arrow_function", "generator_function":
		// Anonymous function in statement position (e.g. a default export).
		c.addFunction("", node)
		return nil

	case "import_statement", "empty_statement", "comment":
		return nil
	}

	// Unknown statement shape: preserve reachability of nested calls.
	return c.blockOf(node)
}

// blockOf wraps a node's statements in a neutral block.
func (c *converter) blockOf(node *sitter.Node) *ir.Node {
	return &ir.Node{Kind: ir.KindBlock, Pos: c.pos(node), Body: c.stmts(node)}
}

// branchOf wraps a conditional arm so the engine applies weak updates to
// assignments inside it.
func (c *converter) branchOf(node *sitter.Node) *ir.Node {
	b := c.blockOf(node)
	b.Branch = true
	return b
}

// expr converts an expression node.
func (c *converter) expr(node *sitter.Node) *ir.Node {
	if node == nil {
		return nil
	}
	pos := c.pos(node)

	switch node.Type() {
	case "identifier", "shorthand_property_identifier", "this":
		return &ir.Node{Kind: ir.KindIdent, Pos: pos, Name: c.text(node)}

	case "member_expression":
		return &ir.Node{
			Kind:   ir.KindMember,
			Pos:    pos,
			Name:   c.text(node.ChildByFieldName("property")),
			Object: c.expr(node.ChildByFieldName("object")),
			Text:   c.text(node),
		}

	case "subscript_expression":
		// Only a static string index flattens to a property name; computed
		// access keeps the receiver but loses the property.
		name := ""
		if index := node.ChildByFieldName("index"); index != nil && index.Type() == "string" {
			name = strings.Trim(c.text(index), "\"'`")
		}
		return &ir.Node{
			Kind:   ir.KindMember,
			Pos:    pos,
			Name:   name,
			Object: c.expr(node.ChildByFieldName("object")),
			Text:   c.text(node),
		}

	case "call_expression", "new_expression":
		call := &ir.Node{
			Kind:   ir.KindCall,
			Pos:    pos,
			Callee: c.expr(calleeOf(node)),
			Text:   c.text(node),
		}
		if argsNode := node.ChildByFieldName("arguments"); argsNode != nil {
			for i := 0; i < int(argsNode.NamedChildCount()); i++ {
				call.Args = append(call.Args, c.expr(argsNode.NamedChild(i)))
			}
		}
		return call

	case "binary_expression":
		op := c.opText(node)
		kind := ir.KindBinary
		if op == "&&" || op == "||" || op == "??" {
			kind = ir.KindLogical
		}
		return &ir.Node{
			Kind:  kind,
			Pos:   pos,
			Op:    op,
			Left:  c.expr(node.ChildByFieldName("left")),
			Right: c.expr(node.ChildByFieldName("right")),
			Text:  c.text(node),
		}

	case "ternary_expression":
		return &ir.Node{
			Kind: ir.KindTernary,
			Pos:  pos,
			Cond: c.expr(node.ChildByFieldName("condition")),
			Then: c.expr(node.ChildByFieldName("consequence")),
			Else: c.expr(node.ChildByFieldName("alternative")),
			Text: c.text(node),
		}

	case "template_string":
		tmpl := &ir.Node{Kind: ir.KindTemplate, Pos: pos, Text: c.text(node)}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() != "template_substitution" {
				continue
			}
			expr := child.ChildByFieldName("expression")
			if expr == nil && child.NamedChildCount() > 0 {
				expr = child.NamedChild(0)
			}
			if converted := c.expr(expr); converted != nil {
				tmpl.Args = append(tmpl.Args, converted)
			}
		}
		return tmpl

	case "spread_element":
		var inner *sitter.Node
		if node.NamedChildCount() > 0 {
			inner = node.NamedChild(0)
		}
		return &ir.Node{Kind: ir.KindSpread, Pos: pos, Value: c.expr(inner)}

	case "array":
		coll := &ir.Node{Kind: ir.KindCollection, Pos: pos, Text: c.text(node)}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			coll.Args = append(coll.Args, c.expr(node.NamedChild(i)))
		}
		return coll

	case "object":
		coll := &ir.Node{Kind: ir.KindCollection, Pos: pos, Text: c.text(node)}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "pair":
				coll.Args = append(coll.Args, c.expr(child.ChildByFieldName("value")))
			case "shorthand_property_identifier":
				coll.Args = append(coll.Args, c.expr(child))
			case "spread_element":
				coll.Args = append(coll.Args, c.expr(child))
			}
		}
		return coll

	case "assignment_expression":
		return c.stmt(node)

	case "parenthesized_expression", "await_expression":
		if node.NamedChildCount() > 0 {
			return c.expr(node.NamedChild(0))
		}
		return nil

	case "sequence_expression":
		// (a, b): value is the last expression; earlier ones matter only
		// for side effects, preserved via a block.
		if n := int(node.NamedChildCount()); n > 0 {
			return c.expr(node.NamedChild(n - 1))
		}
		return nil

	case "string", "number", "regex", "true", "false", "null", "undefined":
		return &ir.Node{Kind: ir.KindLiteral, Pos: pos, Text: c.text(node)}

	case "function", "function_expression", "arrow_function", "generator_function":
		// Inline callback: registered as its own function, opaque here.
		c.addFunction("", node)
		return &ir.Node{Kind: ir.KindLiteral, Pos: pos, Text: "<function>"}
	}

	return &ir.Node{Kind: ir.KindLiteral, Pos: pos, Text: c.text(node)}
}

// target converts an assignment left-hand side.
func (c *converter) target(node *sitter.Node) *ir.Node {
	if node == nil {
		return nil
	}
	switch node.Type() {
	case "object_pattern", "array_pattern":
		return c.pattern(node)
	}
	return c.expr(node)
}

// pattern converts a destructuring pattern into binding entries.
func (c *converter) pattern(node *sitter.Node) *ir.Node {
	p := &ir.Node{Kind: ir.KindPattern, Pos: c.pos(node)}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "shorthand_property_identifier_pattern", "identifier":
			name := c.text(child)
			p.Args = append(p.Args, &ir.Node{
				Kind: ir.KindIdent, Pos: c.pos(child), Name: name, Field: name,
			})
		case "pair_pattern":
			key := c.text(child.ChildByFieldName("key"))
			value := child.ChildByFieldName("value")
			if value == nil {
				continue
			}
			switch value.Type() {
			case "identifier":
				p.Args = append(p.Args, &ir.Node{
					Kind: ir.KindIdent, Pos: c.pos(value), Name: c.text(value),
					Field: strings.Trim(key, "\"'`"),
				})
			case "object_pattern", "array_pattern":
				p.Args = append(p.Args, c.pattern(value))
			}
		case "object_pattern", "array_pattern":
			p.Args = append(p.Args, c.pattern(child))
		case "rest_pattern":
			if child.NamedChildCount() > 0 && child.NamedChild(0).Type() == "identifier" {
				rest := child.NamedChild(0)
				p.Args = append(p.Args, &ir.Node{
					Kind: ir.KindIdent, Pos: c.pos(rest), Name: c.text(rest),
				})
			}
		case "assignment_pattern":
			if left := child.ChildByFieldName("left"); left != nil {
				if left.Type() == "identifier" {
					name := c.text(left)
					p.Args = append(p.Args, &ir.Node{
						Kind: ir.KindIdent, Pos: c.pos(left), Name: name, Field: name,
					})
				} else {
					p.Args = append(p.Args, c.pattern(left))
				}
			}
		}
	}
	return p
}

func calleeOf(node *sitter.Node) *sitter.Node {
	if fn := node.ChildByFieldName("function"); fn != nil {
		return fn
	}
	return node.ChildByFieldName("constructor")
}

func (c *converter) opText(node *sitter.Node) string {
	if op := node.ChildByFieldName("operator"); op != nil {
		return c.text(op)
	}
	return ""
}

func (c *converter) text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return node.Content(c.source)
}

func (c *converter) pos(node *sitter.Node) ir.Position {
	if node == nil {
		return ir.Position{File: c.filename}
	}
	start := node.StartPoint()
	return ir.Position{
		File:   c.filename,
		Line:   int(start.Row) + 1,
		Column: int(start.Column),
	}
}

// BuildCallGraph links call expressions across the given functions by
// simple callee name. A name defined by more than one function, or not
// defined at all, records an unknown-callee edge.
func BuildCallGraph(fns []*ir.Function) *ir.CallGraph {
	byName := make(map[string][]string)
	for _, fn := range fns {
		if fn == nil || fn.Name == "" {
			continue
		}
		byName[fn.Name] = append(byName[fn.Name], fn.ID)
	}
	for name := range byName {
		sort.Strings(byName[name])
	}

	cg := ir.NewCallGraph()
	for _, fn := range fns {
		if fn == nil || fn.Body == nil {
			continue
		}
		for _, n := range fn.Body {
			recordCalls(cg, fn.ID, n, byName)
		}
	}
	return cg
}

func recordCalls(cg *ir.CallGraph, caller string, n *ir.Node, byName map[string][]string) {
	if n == nil {
		return
	}
	if n.Kind == ir.KindCall {
		if n.Callee != nil && n.Callee.Kind == ir.KindIdent {
			if ids := byName[n.Callee.Name]; len(ids) == 1 {
				cg.AddEdge(caller, ids[0])
			} else {
				cg.AddEdge(caller, ir.UnknownCallee)
			}
		} else {
			cg.AddEdge(caller, ir.UnknownCallee)
		}
	}
	for _, c := range n.Children() {
		recordCalls(cg, caller, c, byName)
	}
}
