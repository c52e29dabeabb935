// Package output renders documents for operators and writes them to their
// destination.
//
//   - Serialization (serializer.go): [Render] encodes YAML or JSON with
//     sorted keys and without null values. YAML may carry a comment header.
//
//   - Writers (writer.go): the [Writer] interface with [StdoutWriter] and
//     [FileWriter]. A FileWriter replaces files atomically or, with
//     [WithoutOverwrite], refuses to touch an existing one.
package output
