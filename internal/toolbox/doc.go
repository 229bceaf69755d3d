// Package toolbox runs the external imaging tools the pipeline sequences:
// Spinal Cord Toolbox binaries (sct_*) and the python scripts shipped with
// the rootlets model checkout.
//
// Every invocation goes through an Executor so tests can count and fake
// tool calls without the toolbox installed. Failures carry the tool name and
// exit status (ExitError) so the CLI can propagate it as its own exit code.
package toolbox
