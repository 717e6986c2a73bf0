// Package priority lowers the scheduling priority of worker goroutines.
package priority

// Niceness is the nice value applied by Lower.
const Niceness = 10
