package reverting

import "github.com/govm-net/starksim/core"

func Constructor() error {
	return core.Revert("not today")
}
