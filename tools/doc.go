// Package tools is the catalog of operations the bridge can invoke.
//
// A Tool pairs a Definition (id, descriptive metadata and a closed-world input
// schema) with a Handler. Tools are registered once at startup with
// Registry.Register or Registry.RegisterAll and stay immutable until Clear.
//
// Registry.Invoke validates the supplied arguments before a handler ever runs:
//
//   - a missing required parameter is reported at its field path
//   - keys not declared in the schema are rejected
//   - a value of the wrong type is reported once and not descended into
//   - enum, minimum and maximum are checked only on correctly typed values
//   - objects recurse as "parent.child", arrays as "parent[2]"
//
// All problems are collected and returned together as an *Error of kind
// KindInvalidArguments. Handler errors and panics are wrapped as
// KindExecution, so no fault crosses the registry boundary.
//
// NewTool derives the input and output schemas from Go structs:
//
//	type greetArgs struct {
//	    Name  string `json:"name" jsonschema:"description=Who to greet"`
//	    Times int    `json:"times,omitempty" jsonschema:"minimum=1,maximum=5,default=1"`
//	}
//	type greetOut struct {
//	    Text string `json:"text"`
//	}
//
//	greet := tools.NewTool(tools.Definition{ID: "demo.greet"},
//	    func(ctx context.Context, r *tools.Request[greetArgs]) (greetOut, error) {
//	        return greetOut{Text: strings.Repeat("hi "+r.Args().Name+" ", r.Args().Times)}, nil
//	    })
package tools
