// Package phase contains the build lifecycle model.
//
// A build is the linear pipeline install -> prebuild -> build -> postbuild.
// Phase names are matched exactly; CanFollow decides whether a phase may run
// after the last completed one when ordering is enforced.
package phase
