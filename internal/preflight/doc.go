// Package preflight provides readiness checks for the external tools and
// filesystem paths the pipeline depends on.
//
// The CLI "neuravox doctor" command runs RunAll and renders the results so
// users can see what is missing before queueing hours of audio. Each check
// is gated by its config toggle; disabled features are skipped.
package preflight
