package tool

// Function is a generic adapter that exposes a plain Go function as an
// agentcrew tool. It inherits validation, identity and event emission from
// BaseTool.
//
// A Function has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type Function struct {
	*BaseTool
}

// NewFunction constructs a Function from an explicit schema and run
// function.
//
// Example:
//
//	weather := tool.NewFunction(
//	  "Weather",
//	  "Look up the current weather for a city",
//	  tool.Schema{
//	    Properties: map[string]tool.Property{
//	      "input": {Type: "string", Description: "City name"},
//	    },
//	    Required: []string{"input"},
//	  },
//	  func(ctx context.Context, input tool.Input) (any, error) {
//	    return "Sunny in " + input.Args["input"].(string), nil
//	  },
//	)
func NewFunction(name, description string, schema Schema, run RunFunc, optFns ...func(o *Options)) *Function {
	optFns = append([]func(o *Options){WithParameters(schema)}, optFns...)

	f := &Function{BaseTool: New(name, description, optFns...)}
	f.Bind(run)

	return f
}

// NewFunctionFromStruct derives the parameter schema from a struct via
// reflection (see SchemaFromStruct). A convenience for simple argument
// containers.
func NewFunctionFromStruct(name, description string, structType any, run RunFunc, optFns ...func(o *Options)) *Function {
	return NewFunction(name, description, SchemaFromStruct(structType), run, optFns...)
}
