// Package lbl implements line-by-line radial-velocity extraction: template
// derivative splines, the per-line reference table, the coarse CCF
// bootstrap and the iterative Bouchy fit that refines the systemic
// velocity of each exposure.
package lbl
