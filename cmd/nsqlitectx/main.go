package main

import (
	"context"
	"log"

	"github.com/nsqlite/nsqlitectx/internal/nsqlitectx"
)

func main() {
	if err := nsqlitectx.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
