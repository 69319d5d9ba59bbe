// Package codegen compiles program graphs into per-entity event handlers.
//
// A pass reads immutable graph snapshots. Every live event root becomes its
// own scope: a JavaScript function named <event>_<entity>, with _2, _3, ...
// appended for further roots of the same event on the same entity. Roots
// are visited in creation order, so an unchanged graph always yields the
// same names and byte-identical output.
//
// A scope that cannot be generated (an empty required slot or field, a
// dangling variable, a structural cycle) is reported as a ScopeError. It
// keeps its name reserved and the rest of the pass still emits.
//
// Block code comes from the catalog's text/template sources, executed
// against a render context:
//
//	.Name            the scope's function name (event blocks)
//	.Field "F"       raw field value, or the field default
//	.Str "F"         field value as a quoted string literal
//	.Entity "F"      entity reference, resolved through the registry
//	.Var "F"         identifier of the referenced variable
//	.Value "S"       code of the value block in slot S, or the slot default
//	.Block "S"       braced statement chain starting in slot S
package codegen
