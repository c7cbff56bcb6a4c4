// Package instrument loads plain-text instrument products for the line
// fit: CSV line masks and templates, JSON exposures and blaze files, and
// YAML run manifests.
//
// File formats:
//
//	mask.csv      center,weight            (wavelength in the template unit)
//	template.csv  wavelength,flux
//	exposure.json {"object", "mjd_mid", "berv", "header", "wave", "flux", "rms"}
//	blaze.json    {"blaze": [[...], ...]}
//
// CSV files may start with a header row and may contain '#' comments.
// JSON arrays use null for missing pixels.
package instrument
