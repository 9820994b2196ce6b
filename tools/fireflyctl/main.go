// Command fireflyctl runs operator tasks against the Firefly database:
// seeding the model catalog, creating indexes and printing forecasts.
package main

func main() {
	Execute()
}
