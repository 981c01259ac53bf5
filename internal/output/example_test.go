package output_test

import (
	"fmt"

	"github.com/blackwell-systems/tapline/internal/output"
)

// Rendering a dependency tree for a deps --tree invocation.
func ExampleRenderTree() {
	tree := &output.TreeNode{
		Label: "wget",
		Children: []*output.TreeNode{
			{Label: "libidn2", Children: []*output.TreeNode{{Label: "libunistring"}}},
			{Label: "openssl@3"},
		},
	}

	fmt.Print(output.RenderTree(tree))
	// Output:
	// wget
	// ├── libidn2
	// │   └── libunistring
	// └── openssl@3
}

// Driving a progress bar across plan entries.
func ExampleProgressBar() {
	progress := output.NewProgress(12, "Pouring bottles")
	for i := 0; i < 12; i++ {
		progress.Step()
	}
	progress.Finish()
}
