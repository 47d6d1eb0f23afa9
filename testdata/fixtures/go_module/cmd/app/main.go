package main

import (
	"fmt"

	"example.com/shop/internal/store"
)

func main() {
	fmt.Println(store.Get("1").Name)
}
