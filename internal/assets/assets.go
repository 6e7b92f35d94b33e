// Package assets embeds the default content shipped with the binary.
package assets

import (
	_ "embed"
)

//go:embed data/achievements.yaml
var achievements []byte

//go:embed data/shop.yaml
var shop []byte

// Achievements returns the default achievement definitions document.
func Achievements() []byte {
	return achievements
}

// Shop returns the default shop catalog document.
func Shop() []byte {
	return shop
}
