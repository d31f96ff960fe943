// Package config defines the format-agnostic run configuration: the target
// grid, the decimation stride, the reflectance bands with their resampling
// ratios and the scene classification band.
//
// Concrete loaders for HCL and YAML live in separate packages and all start
// from Default, so a file only needs to name what it changes.
package config
