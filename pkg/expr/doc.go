// Package expr implements the restricted reactive expression language.
//
// An expression is authored as a single line of text and parsed into an
// immutable Rx record: the source, the AST, and the ordered set of reactive
// fields it reads (written as @name). The same AST is consumed by two
// runtimes that must stay behaviorally identical:
//
//   - the server-side interpreter (Eval in this package), and
//   - the client-side JavaScript emitted by package transpile.
//
// The grammar is deliberately small and closed: literals, field references,
// arithmetic/comparison/boolean operators, an if/then/else conditional, a
// fixed table of builtin calls, single-parameter lambdas for the collection
// builtins, pipe chains (desugared at parse time), and string interpolation.
// Anything else is a parse error; the parity guarantee only has to hold for
// what the parser accepts.
//
// Numeric semantics follow the client runtime: every number is a float64,
// division is floating point, and arithmetic over non-numbers yields NaN.
// Failed explicit conversions (toNumber) produce the ErrValue sentinel,
// which propagates through every operation rather than panicking.
package expr
