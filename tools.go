//go:build tools

package nanofetch

import (
	_ "github.com/maxbrunsfeld/counterfeiter/v6"
)
