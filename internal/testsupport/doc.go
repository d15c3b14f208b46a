// Package testsupport holds fixtures shared by package tests: temp-dir
// configs, an opened job registry and placeholder audio files.
package testsupport
