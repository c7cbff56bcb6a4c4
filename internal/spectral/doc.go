// Package spectral holds the numerical building blocks of the RV engine:
// NaN-tolerant statistics, the running-median low-pass filter, the
// velocity-to-pixel scale, and the interpolants (degree-k B-splines,
// piecewise-linear and monotone pixel maps) used to resample spectra.
//
// Every function here treats non-finite samples as missing. Aggregates
// over empty or all-missing input return NaN rather than zero.
package spectral
