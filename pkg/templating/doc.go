/*
Package templating provides a concurrent-safe, filesystem-based management
layer on top of the weft template engine.

A TemplateManager loads full templates (*.tmpl) and partials (*.part) from a
directory, supports hot reloading via Refresh, and executes templates with a
rich library of helper functions: string manipulation, arithmetic,
collection handling, JSON and base64 encoding, humanized formatting, and
time helpers. Safety limits from TemplateConfig cap output size and the
allocation-heavy functions, so a hostile or buggy template cannot take the
process down.

Raw template strings can be rendered or validated against a clean clone of
the loaded set, which makes previewing unsaved templates cheap and free of
side effects.
*/
package templating
