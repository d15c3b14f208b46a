// Package summary holds the structured visit summary produced by the language
// model: building the bounded conversation prompt input, translating the
// payload value by value, and persisting it next to the other artifacts.
package summary
