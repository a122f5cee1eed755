// Command offload drives a WebAssembly prover module through the offload
// coordinator: one-shot runs, an interactive terminal UI and an HTTP service.
package main

func main() {
	Execute()
}
