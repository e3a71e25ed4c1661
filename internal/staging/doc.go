// Package staging manages the lifecycle of the temporary extraction root.
package staging
