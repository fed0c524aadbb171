// Package embedded pulls the application state that a page serializes into inline
// <script> assignments. Scripts are split into statements with a JavaScript lexer so
// that semicolons inside string literals never cut a payload short.
package embedded
