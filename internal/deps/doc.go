// Package deps reports which external programs and kernel interfaces the
// configured backends rely on.
//
// The daemon logs the result at startup and `dynpower status` renders it so a
// missing powerprofilesctl or platform_profile file shows up before the first
// failed apply.
package deps
