// Command facesense runs the attendance engine and its tooling.
package main

func main() {
	Execute()
}
