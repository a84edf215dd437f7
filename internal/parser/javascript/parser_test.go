package javascript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lancet/internal/ir"
)

func parse(t *testing.T, src string) []*ir.Function {
	t.Helper()
	fns, err := NewParser(zaptest.NewLogger(t)).ParseFile(context.Background(), "test.js", []byte(src))
	require.NoError(t, err)
	return fns
}

func fnByName(fns []*ir.Function, name string) *ir.Function {
	for _, fn := range fns {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func TestParseFunctionForms(t *testing.T) {
	src := `
function handler(req, res) { res.send(req.query); }
const arrow = (x) => x + 1;
class Service {
  find(id) { return id; }
}
export function exported(y) { return y; }
`
	fns := parse(t, src)

	names := map[string]int{}
	for _, fn := range fns {
		names[fn.Name]++
	}
	for _, want := range []string{ModuleFunction, "handler", "arrow", "find", "exported"} {
		assert.Equal(t, 1, names[want], "expected exactly one function named %q", want)
	}

	handler := fnByName(fns, "handler")
	require.NotNil(t, handler)
	assert.Equal(t, "test.js:handler", handler.ID)
	assert.Equal(t, "test.js", handler.File)
	assert.Equal(t, "javascript", handler.Language)
	require.Len(t, handler.Params, 2)
	assert.Equal(t, "req", handler.Params[0].Name)
	assert.Equal(t, "res", handler.Params[1].Name)
	require.NotNil(t, handler.Body)
}

func TestParseModuleFunction(t *testing.T) {
	src := `
const greeting = name;
doWork(greeting);
`
	fns := parse(t, src)
	module := fnByName(fns, ModuleFunction)
	require.NotNil(t, module)
	assert.Equal(t, "test.js:"+ModuleFunction, module.ID)

	require.Len(t, module.Body, 2)
	assert.Equal(t, ir.KindVarDecl, module.Body[0].Kind)
	assert.Equal(t, ir.KindCall, module.Body[1].Kind)
}

func TestParseExpressionArrowBody(t *testing.T) {
	fns := parse(t, `const double = (x) => x + x;`)
	fn := fnByName(fns, "double")
	require.NotNil(t, fn)

	require.Len(t, fn.Body, 1)
	ret := fn.Body[0]
	assert.Equal(t, ir.KindReturn, ret.Kind)
	require.NotNil(t, ret.Value)
	assert.Equal(t, ir.KindBinary, ret.Value.Kind)
	assert.Equal(t, "+", ret.Value.Op)
}

func TestParseDestructuredParams(t *testing.T) {
	fns := parse(t, `function f({id, name}, rest) { return id; }`)
	fn := fnByName(fns, "f")
	require.NotNil(t, fn)

	require.Len(t, fn.Params, 2)
	assert.Equal(t, "arg0", fn.Params[0].Name)
	assert.Equal(t, "rest", fn.Params[1].Name)

	// The prelude rebinds the pattern from the synthetic parameter.
	require.NotEmpty(t, fn.Body)
	prelude := fn.Body[0]
	assert.Equal(t, ir.KindVarDecl, prelude.Kind)
	require.NotNil(t, prelude.Target)
	assert.Equal(t, ir.KindPattern, prelude.Target.Kind)
	require.NotNil(t, prelude.Value)
	assert.Equal(t, "arg0", prelude.Value.Name)

	require.Len(t, prelude.Target.Args, 2)
	assert.Equal(t, "id", prelude.Target.Args[0].Name)
	assert.Equal(t, "id", prelude.Target.Args[0].Field)
	assert.Equal(t, "name", prelude.Target.Args[1].Name)
}

func TestParseDefaultAndRestParams(t *testing.T) {
	fns := parse(t, `function f(a = 1, ...rest) { return a; }`)
	fn := fnByName(fns, "f")
	require.NotNil(t, fn)
	require.Len(t, fn.Params, 2)
	assert.Equal(t, "a", fn.Params[0].Name)
	assert.Equal(t, "rest", fn.Params[1].Name)
}

func TestParseStatementShapes(t *testing.T) {
	src := `
function g(a) {
  const q = ` + "`SELECT ${a}`" + `;
  const b = a ? a : "x";
  const h = req.headers["user-agent"];
  if (a) { eval(a); } else { log(a); }
  return q;
}
`
	fn := fnByName(parse(t, src), "g")
	require.NotNil(t, fn)
	require.Len(t, fn.Body, 5)

	tmplDecl := fn.Body[0]
	assert.Equal(t, ir.KindVarDecl, tmplDecl.Kind)
	require.Equal(t, ir.KindTemplate, tmplDecl.Value.Kind)
	require.Len(t, tmplDecl.Value.Args, 1)
	assert.Equal(t, "a", tmplDecl.Value.Args[0].Name)

	ternDecl := fn.Body[1]
	require.Equal(t, ir.KindTernary, ternDecl.Value.Kind)
	assert.NotNil(t, ternDecl.Value.Then)
	assert.NotNil(t, ternDecl.Value.Else)

	subDecl := fn.Body[2]
	require.Equal(t, ir.KindMember, subDecl.Value.Kind)
	assert.Equal(t, "user-agent", subDecl.Value.Name,
		"static string subscripts flatten to property names")
	require.NotNil(t, subDecl.Value.Object)
	assert.Equal(t, "headers", subDecl.Value.Object.Name)

	ifStmt := fn.Body[3]
	assert.Equal(t, ir.KindBlock, ifStmt.Kind, "control flow becomes a neutral block")
	require.Len(t, ifStmt.Body, 3)
	assert.False(t, ifStmt.Body[0].Branch, "condition is not an arm")
	assert.True(t, ifStmt.Body[1].Branch, "consequence is a branch arm")
	assert.True(t, ifStmt.Body[2].Branch, "alternative is a branch arm")

	assert.Equal(t, ir.KindReturn, fn.Body[4].Kind)
}

func TestParseLoopBodiesAreBranchArms(t *testing.T) {
	fn := fnByName(parse(t, `function f(x) {
  while (x) { x = "safe"; }
  for (let i = 0; i < 2; i++) { x = "safe"; }
  do { x = "safe"; } while (x);
}`), "f")
	require.NotNil(t, fn)
	require.Len(t, fn.Body, 3)
	assert.True(t, fn.Body[0].Branch, "a while body may run zero times")
	assert.True(t, fn.Body[1].Branch, "a for body may run zero times")
	assert.False(t, fn.Body[2].Branch, "a do-while body always runs at least once")
}

func TestParseComputedSubscriptLosesProperty(t *testing.T) {
	fn := fnByName(parse(t, `function g(k) { const v = data[k]; return v; }`), "g")
	require.NotNil(t, fn)
	require.Len(t, fn.Body, 2)
	member := fn.Body[0].Value
	require.Equal(t, ir.KindMember, member.Kind)
	assert.Empty(t, member.Name)
	assert.Equal(t, "data", member.Object.Name)
}

func TestParseInlineCallbackRegistered(t *testing.T) {
	src := `app.get("/users", (req, res) => { res.send(req.query); });`
	fns := parse(t, src)

	cb := fnByName(fns, "anon@1")
	require.NotNil(t, cb, "inline callbacks become analyzable functions")
	require.Len(t, cb.Params, 2)
	assert.Equal(t, "req", cb.Params[0].Name)
	require.NotEmpty(t, cb.Body)

	// The call site sees an opaque literal in the argument slot.
	module := fnByName(fns, ModuleFunction)
	require.NotNil(t, module)
	require.Len(t, module.Body, 1)
	call := module.Body[0]
	require.Equal(t, ir.KindCall, call.Kind)
	require.Len(t, call.Args, 2)
	assert.Equal(t, ir.KindLiteral, call.Args[1].Kind)
}

func TestParsePositions(t *testing.T) {
	src := "const a = b;\nfunction f() { return 1; }\n"
	fns := parse(t, src)
	fn := fnByName(fns, "f")
	require.NotNil(t, fn)
	assert.Equal(t, 2, fn.Pos.Line)
	assert.Equal(t, "test.js", fn.Pos.File)

	module := fnByName(fns, ModuleFunction)
	require.Len(t, module.Body, 1)
	assert.Equal(t, 1, module.Body[0].Pos.Line)
}

func TestBuildCallGraph(t *testing.T) {
	callTo := func(name string) *ir.Node {
		return &ir.Node{
			Kind:   ir.KindCall,
			Callee: &ir.Node{Kind: ir.KindIdent, Name: name},
		}
	}
	memberCall := &ir.Node{
		Kind: ir.KindCall,
		Callee: &ir.Node{
			Kind:   ir.KindMember,
			Name:   "query",
			Object: &ir.Node{Kind: ir.KindIdent, Name: "db"},
		},
	}

	fns := []*ir.Function{
		{ID: "a.js:main", Name: "main", Body: []*ir.Node{
			callTo("helper"), callTo("dup"), memberCall,
		}},
		{ID: "a.js:helper", Name: "helper", Body: []*ir.Node{}},
		{ID: "a.js:dup", Name: "dup", Body: []*ir.Node{}},
		{ID: "b.js:dup", Name: "dup", Body: []*ir.Node{}},
	}

	cg := BuildCallGraph(fns)
	assert.Equal(t, []string{"a.js:helper"}, cg.ResolvedCallees("a.js:main"),
		"ambiguous and member callees resolve to the unknown marker")
	assert.Contains(t, cg.Callees("a.js:main"), ir.UnknownCallee)
}

func TestParserConcurrentUse(t *testing.T) {
	p := NewParser(zaptest.NewLogger(t))
	src := []byte(`function f(a) { return a; }`)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := p.ParseFile(context.Background(), "test.js", src)
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		assert.NoError(t, <-done)
	}
}
