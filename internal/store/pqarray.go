package store

import "github.com/lib/pq"

func pqArray(s []string) interface{} {
	return pq.Array(s)
}

func pqArrayScan(dest *[]string) interface{} {
	return pq.Array(dest)
}
