/*
Package weft implements a data-driven templating engine for generating
textual output from Go values.

Templates are plain text interleaved with actions delimited by {{ and }}.
An action is a pipeline of commands: field lookups on the current value
(the "dot"), function calls joined with |, variables, and literals.
Control actions provide conditionals ({{if}}/{{else if}}/{{else}}),
iteration ({{range}} with {{break}} and {{continue}}) and scoped rebinding
of dot ({{with}}). {{define}} and {{block}} add named sub-templates to the
set, and {{template "name" pipeline}} invokes them.

Parsing and execution are separate: Parse builds an immutable node tree,
Execute walks it against a data value using reflection. Execution is safe
to run concurrently against a parsed set, and failures are reported as
ExecError values rather than panics.

The language and its semantics follow the conventions popularized by Go's
standard template packages, so templates written for those largely work
here unchanged.
*/
package weft
