// Package ast defines the WEFT abstract syntax tree.
//
// This package contains node definitions only. All other internal
// packages import ast; ast imports nothing internal beyond routes. This
// keeps the tree the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - The node union is CLOSED: Children covers every kind exhaustively,
//     so a new kind cannot be added without updating the traversals.
//   - Every node carries its route annotations from construction
//     (zero-valued until the tagger runs); there is no lazy patching and
//     no "ensure this node is taggable" defensive path.
//   - Tagging only fills annotations, never alters tree structure.
package ast

import "github.com/weftlang/weft/internal/routes"

// Annotations is the route metadata the tagger attaches to every node.
//
// A node is cross-context when more than one route needs its value; the
// primary route is the single substrate responsible for producing the
// canonical value, chosen by a routes.Policy.
type Annotations struct {
	Routes       routes.Set
	PrimaryRoute routes.Route
	CrossContext bool

	// Deps holds the binding statements this node's route propagation
	// touched. Only populated on output statements and bindings.
	Deps map[Node]bool
}

// Reset clears all annotations back to the untagged state.
func (a *Annotations) Reset() {
	*a = Annotations{}
}

// AddRoute records that route r consumes this node's value, setting the
// provisional primary route on first touch.
func (a *Annotations) AddRoute(r routes.Route) {
	a.Routes = a.Routes.Add(r)
	if a.PrimaryRoute == routes.RouteNone {
		a.PrimaryRoute = r
	}
}

// Node is one tree node. All implementations are pointer types so the
// tagger can annotate the tree in place.
type Node interface {
	Ann() *Annotations
	node()
}

// base supplies the annotation storage every node embeds.
type base struct {
	ann Annotations
}

func (b *base) Ann() *Annotations { return &b.ann }
func (b *base) node()             {}

// Num is a numeric literal.
type Num struct {
	base
	V float64
}

// Str is a string literal (media paths, mostly).
type Str struct {
	base
	V string
}

// Var is a reference to a named binding or instance.
type Var struct {
	base
	Name string
}

// Me is a coordinate-placeholder reference such as me.x or me.time.
type Me struct {
	base
	Field string
}

// Binary is a binary operation.
type Binary struct {
	base
	Op    string
	Left  Node
	Right Node
}

// Unary is a unary operation.
type Unary struct {
	base
	Op   string
	Expr Node
}

// Call is a function call; Name is usually a Var naming a builtin or a
// user spindle.
type Call struct {
	base
	Name Node
	Args []Node
}

// Tuple groups expressions, e.g. the right-hand side of a multi-output
// instance binding.
type Tuple struct {
	base
	Items []Node
}

// Index is a subscript access base[index].
type Index struct {
	base
	Base Node
	Idx  Node
}

// StrandAccess reads a named output of another instance, e.g. img@r.
type StrandAccess struct {
	base
	Base Node
	Out  Node
}

// AxisMapping is one axis substitution inside a StrandRemap.
type AxisMapping struct {
	Axis string
	Expr Node
}

// StrandRemap reads another instance's strand under a coordinate remap,
// e.g. img@r[x: me.x * 2].
type StrandRemap struct {
	base
	Base     Node
	Strand   string
	Mappings []AxisMapping
}

// If is a conditional expression with mandatory else.
type If struct {
	base
	Cond Node
	Then Node
	Else Node
}

// Assignment is a named binding statement: let/plain assignment. Later
// bindings of the same name shadow earlier ones.
type Assignment struct {
	base
	Name string
	Op   string
	Expr Node
}

// NamedArg is a name: value argument inside output statements.
type NamedArg struct {
	base
	Name  string
	Value Node
}

// Output is a statement that emits a final value to the outside world.
// Kind is the statement keyword ("display", "play", "compute", ...) and
// alone determines the statement's route. An output statement has
// exactly one canonical route and is never cross-context itself.
type Output struct {
	base
	Kind  string
	Args  []Node
	Named map[string]Node
}

// SpindleDef defines a user function over strands.
type SpindleDef struct {
	base
	Name    string
	Inputs  []string
	Outputs []string
	Body    Node
}

// InstanceBinding binds a named instance with named outputs, e.g.
// wave<v> = sin(me.x * 10).
type InstanceBinding struct {
	base
	Name    string
	Outputs []string
	Expr    Node
}

// Program is the root node: an ordered statement list.
type Program struct {
	base
	Statements []Node
}

// Children returns a node's direct children in source order.
//
// This is the single traversal primitive; every analysis walks the tree
// through it. The type switch is exhaustive over the closed union — a
// kind missing here is a bug, and the default panic makes it loud.
func Children(n Node) []Node {
	switch v := n.(type) {
	case *Num, *Str, *Var, *Me:
		return nil
	case *Binary:
		return []Node{v.Left, v.Right}
	case *Unary:
		return []Node{v.Expr}
	case *Call:
		out := make([]Node, 0, len(v.Args)+1)
		out = append(out, v.Name)
		return append(out, v.Args...)
	case *Tuple:
		return v.Items
	case *Index:
		return []Node{v.Base, v.Idx}
	case *StrandAccess:
		return []Node{v.Base, v.Out}
	case *StrandRemap:
		out := []Node{v.Base}
		for _, m := range v.Mappings {
			out = append(out, m.Expr)
		}
		return out
	case *If:
		return []Node{v.Cond, v.Then, v.Else}
	case *Assignment:
		return []Node{v.Expr}
	case *NamedArg:
		return []Node{v.Value}
	case *Output:
		out := append([]Node{}, v.Args...)
		for _, name := range sortedKeys(v.Named) {
			out = append(out, v.Named[name])
		}
		return out
	case *SpindleDef:
		return []Node{v.Body}
	case *InstanceBinding:
		return []Node{v.Expr}
	case *Program:
		return v.Statements
	default:
		panic("ast: unknown node kind in Children")
	}
}

// Walk visits n and every descendant in depth-first source order. The
// visit function returning false prunes the subtree.
func Walk(n Node, visit func(Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, visit)
	}
}
