package device

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/brimdata/flow/anymath"
	"github.com/brimdata/flow/errors"
	"golang.org/x/sync/errgroup"
)

const HostName = "host"

// cancelCheck is how many work items a goroutine runs between checks for
// cancellation.
const cancelCheck = 4096

// Host compiles kernels for the CPU.  It accepts the subset of OpenCL C the
// fuser emits: a single __kernel function whose body declares the work item
// index with get_global_id(0), assigns double temporaries, and stores one
// value into the output buffer.  Each work item runs the compiled body with
// its temporaries held in a per-goroutine frame, so no intermediate arrays
// are allocated.
type Host struct {
	// ChunkSize is the number of work items each goroutine runs at a time.
	// Zero selects a size from n and GOMAXPROCS.
	ChunkSize int
}

var _ Compiler = (*Host)(nil)

func NewHost() *Host {
	return &Host{}
}

func (*Host) Name() string {
	return HostName
}

func (h *Host) Compile(ctx context.Context, src string) (Kernel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, err := parseKernel(src)
	if err != nil {
		return nil, &KernelCompileError{Compiler: HostName, Diagnostic: err.Error()}
	}
	k.chunk = h.ChunkSize
	return k, nil
}

type frame struct {
	gid   int
	temps []float64
	args  []Arg
	err   error
}

type (
	floatFunc func(*frame) float64
	intFunc   func(*frame) int
)

type hostKernel struct {
	name   string
	params []Param
	ntemps int
	body   []func(*frame)
	output floatFunc
	chunk  int
}

func (k *hostKernel) Params() []Param {
	return k.params
}

func (k *hostKernel) Launch(ctx context.Context, n int, args []Arg, out []float64) error {
	if err := CheckArgs(k.params, args); err != nil {
		return err
	}
	if n < 0 || len(out) < n {
		return errors.E(errors.Execution, "output buffer holds %d elements, %d work items requested", len(out), n)
	}
	chunk := k.chunk
	if chunk <= 0 {
		chunk = n/(4*runtime.GOMAXPROCS(0)) + 1
		if chunk < 1024 {
			chunk = 1024
		}
	}
	g, ctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, lo+chunk
		if hi > n {
			hi = n
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f := &frame{temps: make([]float64, k.ntemps), args: args}
			for gid := lo; gid < hi; gid++ {
				if (gid-lo)%cancelCheck == cancelCheck-1 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				f.gid = gid
				for _, stmt := range k.body {
					stmt(f)
				}
				v := k.output(f)
				if f.err != nil {
					return f.err
				}
				out[gid] = v
			}
			return nil
		})
	}
	return g.Wait()
}

// parseKernel compiles kernel source into a hostKernel.  Errors are
// reported as "line:column: message".
func parseKernel(src string) (*hostKernel, error) {
	p := &kparser{
		temps: make(map[string]int),
		ints:  make(map[string]bool),
		args:  make(map[string]int),
	}
	if err := p.scan(src); err != nil {
		return nil, err
	}
	if err := p.parseKernel(); err != nil {
		return nil, err
	}
	return p.kernel, nil
}

type token struct {
	tok  rune
	text string
	pos  scanner.Position
}

type kparser struct {
	toks   []token
	cursor int
	kernel *hostKernel
	// Symbols.
	temps  map[string]int
	ints   map[string]bool
	args   map[string]int
	output string
}

func (p *kparser) scan(src string) error {
	var s scanner.Scanner
	s.Init(strings.NewReader(src))
	s.Mode = scanner.ScanIdents | scanner.ScanFloats | scanner.ScanInts | scanner.ScanComments | scanner.SkipComments
	var scanErr error
	s.Error = func(s *scanner.Scanner, msg string) {
		if scanErr == nil {
			scanErr = fmt.Errorf("%d:%d: %s", s.Pos().Line, s.Pos().Column, msg)
		}
	}
	for tok := s.Scan(); tok != scanner.EOF; tok = s.Scan() {
		p.toks = append(p.toks, token{tok: tok, text: s.TokenText(), pos: s.Position})
	}
	p.toks = append(p.toks, token{tok: scanner.EOF, pos: s.Pos()})
	return scanErr
}

func (p *kparser) peek() token {
	return p.toks[p.cursor]
}

func (p *kparser) next() token {
	t := p.toks[p.cursor]
	if t.tok != scanner.EOF {
		p.cursor++
	}
	return t
}

func (p *kparser) errorf(t token, format string, args ...interface{}) error {
	return fmt.Errorf("%d:%d: %s", t.pos.Line, t.pos.Column, fmt.Sprintf(format, args...))
}

func (p *kparser) describe(t token) string {
	if t.tok == scanner.EOF {
		return "end of source"
	}
	return strconv.Quote(t.text)
}

func (p *kparser) expect(text string) error {
	t := p.next()
	if t.text != text || t.tok == scanner.EOF {
		return p.errorf(t, "expected %q, found %s", text, p.describe(t))
	}
	return nil
}

func (p *kparser) accept(text string) bool {
	if t := p.peek(); t.tok != scanner.EOF && t.text == text {
		p.cursor++
		return true
	}
	return false
}

func (p *kparser) ident() (token, error) {
	t := p.next()
	if t.tok != scanner.Ident {
		return t, p.errorf(t, "expected identifier, found %s", p.describe(t))
	}
	return t, nil
}

func (p *kparser) parseKernel() error {
	if err := p.expect("__kernel"); err != nil {
		return err
	}
	if err := p.expect("void"); err != nil {
		return err
	}
	name, err := p.ident()
	if err != nil {
		return err
	}
	p.kernel = &hostKernel{name: name.text}
	if err := p.expect("("); err != nil {
		return err
	}
	for {
		if err := p.parseParam(); err != nil {
			return err
		}
		if p.accept(")") {
			break
		}
		if err := p.expect(","); err != nil {
			return err
		}
	}
	if p.output == "" {
		return p.errorf(p.peek(), "kernel %s has no output buffer", name.text)
	}
	if err := p.expect("{"); err != nil {
		return err
	}
	for !p.accept("}") {
		done, err := p.parseStmt()
		if err != nil {
			return err
		}
		if done {
			if err := p.expect("}"); err != nil {
				return err
			}
			break
		}
	}
	if t := p.peek(); t.tok != scanner.EOF {
		return p.errorf(t, "unexpected %s after kernel body", p.describe(t))
	}
	if p.kernel.output == nil {
		return p.errorf(name, "kernel %s never writes %s", name.text, p.output)
	}
	return nil
}

// parseParam parses "__global [const] double *name" or "[const] double
// name".  The one non-const global buffer is the output.
func (p *kparser) parseParam() error {
	global := p.accept("__global")
	isConst := p.accept("const")
	if err := p.expect("double"); err != nil {
		return err
	}
	pointer := p.accept("*")
	name, err := p.ident()
	if err != nil {
		return err
	}
	if p.declared(name.text) {
		return p.errorf(name, "redeclaration of %s", name.text)
	}
	switch {
	case global && pointer && !isConst:
		if p.output != "" {
			return p.errorf(name, "second output buffer %s", name.text)
		}
		p.output = name.text
	case global && pointer:
		p.args[name.text] = len(p.kernel.params)
		p.kernel.params = append(p.kernel.params, Param{Name: name.text, Buffer: true})
	case !global && !pointer:
		p.args[name.text] = len(p.kernel.params)
		p.kernel.params = append(p.kernel.params, Param{Name: name.text})
	default:
		return p.errorf(name, "unsupported parameter declaration for %s", name.text)
	}
	return nil
}

func (p *kparser) declared(name string) bool {
	_, temp := p.temps[name]
	_, arg := p.args[name]
	return temp || arg || p.ints[name] || name == p.output
}

// parseStmt parses one statement of the kernel body and reports whether it
// was the store to the output buffer, which must come last.
func (p *kparser) parseStmt() (bool, error) {
	t := p.next()
	switch {
	case t.text == "int":
		name, err := p.ident()
		if err != nil {
			return false, err
		}
		if p.declared(name.text) {
			return false, p.errorf(name, "redeclaration of %s", name.text)
		}
		if err := p.expect("="); err != nil {
			return false, err
		}
		if err := p.expect("get_global_id"); err != nil {
			return false, err
		}
		if err := p.expect("("); err != nil {
			return false, err
		}
		if dim := p.next(); dim.text != "0" {
			return false, p.errorf(dim, "only dimension 0 is supported")
		}
		if err := p.expect(")"); err != nil {
			return false, err
		}
		p.ints[name.text] = true
		return false, p.expect(";")
	case t.text == "double":
		name, err := p.ident()
		if err != nil {
			return false, err
		}
		if p.declared(name.text) {
			return false, p.errorf(name, "redeclaration of %s", name.text)
		}
		if err := p.expect("="); err != nil {
			return false, err
		}
		e, err := p.parseExpr(0)
		if err != nil {
			return false, err
		}
		fn, err := p.floatCode(e)
		if err != nil {
			return false, err
		}
		slot := p.kernel.ntemps
		p.kernel.ntemps++
		p.temps[name.text] = slot
		p.kernel.body = append(p.kernel.body, func(f *frame) { f.temps[slot] = fn(f) })
		return false, p.expect(";")
	case t.tok == scanner.Ident && t.text == p.output:
		if err := p.expect("["); err != nil {
			return false, err
		}
		index, err := p.parseExpr(0)
		if err != nil {
			return false, err
		}
		if err := p.expect("]"); err != nil {
			return false, err
		}
		if index.op != "name" || !p.ints[index.name] {
			return false, p.errorf(t, "output must be stored at the work item index")
		}
		if err := p.expect("="); err != nil {
			return false, err
		}
		e, err := p.parseExpr(0)
		if err != nil {
			return false, err
		}
		fn, err := p.floatCode(e)
		if err != nil {
			return false, err
		}
		p.kernel.output = fn
		return true, p.expect(";")
	}
	return false, p.errorf(t, "unexpected %s at start of statement", p.describe(t))
}

// node is an expression of the kernel body before it is compiled for the
// float or the integer domain.
type node struct {
	op   string // "num", "name", "index", "call", "neg", or a binary operator
	val  float64
	text string
	name string
	args []*node
	tok  token
}

var binaryPrec = map[string]int{"+": 1, "-": 1, "*": 2, "/": 2}

func (p *kparser) parseExpr(minPrec int) (*node, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		prec, ok := binaryPrec[t.text]
		if !ok || t.tok == scanner.EOF || prec < minPrec {
			return lhs, nil
		}
		p.next()
		rhs, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		lhs = &node{op: t.text, args: []*node{lhs, rhs}, tok: t}
	}
}

func (p *kparser) parseUnary() (*node, error) {
	if t := p.peek(); t.text == "-" {
		p.next()
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &node{op: "neg", args: []*node{e}, tok: t}, nil
	}
	return p.parsePrimary()
}

func (p *kparser) parsePrimary() (*node, error) {
	t := p.next()
	switch t.tok {
	case scanner.Float, scanner.Int:
		v, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "malformed number %s", t.text)
		}
		return &node{op: "num", val: v, text: t.text, tok: t}, nil
	case scanner.Ident:
		switch {
		case p.accept("("):
			var args []*node
			for !p.accept(")") {
				if len(args) > 0 {
					if err := p.expect(","); err != nil {
						return nil, err
					}
				}
				arg, err := p.parseExpr(0)
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
			}
			return &node{op: "call", name: t.text, args: args, tok: t}, nil
		case p.accept("["):
			index, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			if err := p.expect("]"); err != nil {
				return nil, err
			}
			return &node{op: "index", name: t.text, args: []*node{index}, tok: t}, nil
		}
		return &node{op: "name", name: t.text, tok: t}, nil
	case '(':
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		return e, p.expect(")")
	}
	return nil, p.errorf(t, "unexpected %s in expression", p.describe(t))
}

var hostUnaries = map[string]anymath.Unary{
	"fabs": anymath.Unaries["abs"],
	"sqrt": anymath.Unaries["sqrt"],
	"exp":  anymath.Unaries["exp"],
	"log":  anymath.Unaries["log"],
	"sin":  anymath.Unaries["sin"],
	"cos":  anymath.Unaries["cos"],
	"tan":  anymath.Unaries["tan"],
}

var hostBinaries = map[string]anymath.Float64{
	"+":    anymath.Add.Float64,
	"-":    anymath.Sub.Float64,
	"*":    anymath.Mul.Float64,
	"/":    anymath.Div.Float64,
	"pow":  anymath.Pow.Float64,
	"fmin": anymath.Min.Float64,
	"fmax": anymath.Max.Float64,
}

var hostConstants = map[string]float64{
	"NAN":      math.NaN(),
	"INFINITY": math.Inf(1),
}

func (p *kparser) floatCode(n *node) (floatFunc, error) {
	switch n.op {
	case "num":
		v := n.val
		return func(*frame) float64 { return v }, nil
	case "name":
		if slot, ok := p.temps[n.name]; ok {
			return func(f *frame) float64 { return f.temps[slot] }, nil
		}
		if k, ok := p.args[n.name]; ok && !p.kernel.params[k].Buffer {
			return func(f *frame) float64 { return f.args[k].Scalar }, nil
		}
		if v, ok := hostConstants[n.name]; ok {
			return func(*frame) float64 { return v }, nil
		}
		if p.ints[n.name] {
			return func(f *frame) float64 { return float64(f.gid) }, nil
		}
		return nil, p.errorf(n.tok, "undeclared identifier %s", n.name)
	case "index":
		k, ok := p.args[n.name]
		if !ok || !p.kernel.params[k].Buffer {
			return nil, p.errorf(n.tok, "%s is not an input buffer", n.name)
		}
		index, err := p.intCode(n.args[0])
		if err != nil {
			return nil, err
		}
		name := n.name
		return func(f *frame) float64 {
			i := index(f)
			buf := f.args[k].Buffer
			if i < 0 || i >= len(buf) {
				if f.err == nil {
					f.err = errors.E(errors.Execution, "work item %d reads %s[%d] beyond its %d elements", f.gid, name, i, len(buf))
				}
				return 0
			}
			return buf[i]
		}, nil
	case "neg":
		a, err := p.floatCode(n.args[0])
		if err != nil {
			return nil, err
		}
		return func(f *frame) float64 { return anymath.Neg(a(f)) }, nil
	case "call":
		return p.callCode(n)
	}
	fn, ok := hostBinaries[n.op]
	if !ok {
		return nil, p.errorf(n.tok, "unsupported operator %s", n.op)
	}
	return p.binaryCode(fn, n.args[0], n.args[1])
}

func (p *kparser) callCode(n *node) (floatFunc, error) {
	if fn, ok := hostUnaries[n.name]; ok {
		if len(n.args) != 1 {
			return nil, p.errorf(n.tok, "%s takes 1 argument, %d given", n.name, len(n.args))
		}
		a, err := p.floatCode(n.args[0])
		if err != nil {
			return nil, err
		}
		return func(f *frame) float64 { return fn(a(f)) }, nil
	}
	if fn, ok := hostBinaries[n.name]; ok {
		if len(n.args) != 2 {
			return nil, p.errorf(n.tok, "%s takes 2 arguments, %d given", n.name, len(n.args))
		}
		return p.binaryCode(fn, n.args[0], n.args[1])
	}
	return nil, p.errorf(n.tok, "unknown function %s", n.name)
}

func (p *kparser) binaryCode(fn anymath.Float64, lhs, rhs *node) (floatFunc, error) {
	a, err := p.floatCode(lhs)
	if err != nil {
		return nil, err
	}
	b, err := p.floatCode(rhs)
	if err != nil {
		return nil, err
	}
	return func(f *frame) float64 { return fn(a(f), b(f)) }, nil
}

// intCode compiles a buffer index, which is integer arithmetic over the
// work item index and integer literals.
func (p *kparser) intCode(n *node) (intFunc, error) {
	switch n.op {
	case "num":
		if n.tok.tok != scanner.Int {
			return nil, p.errorf(n.tok, "buffer index must be an integer, found %s", n.text)
		}
		v := int(n.val)
		return func(*frame) int { return v }, nil
	case "name":
		if !p.ints[n.name] {
			return nil, p.errorf(n.tok, "buffer index must be an integer expression of the work item, found %s", n.name)
		}
		return func(f *frame) int { return f.gid }, nil
	case "+", "*":
		a, err := p.intCode(n.args[0])
		if err != nil {
			return nil, err
		}
		b, err := p.intCode(n.args[1])
		if err != nil {
			return nil, err
		}
		if n.op == "+" {
			return func(f *frame) int { return a(f) + b(f) }, nil
		}
		return func(f *frame) int { return a(f) * b(f) }, nil
	}
	return nil, p.errorf(n.tok, "unsupported buffer index expression")
}
