// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// bio-samtool views, converts, indexes and summarizes SAM and BAM files.
package main

import "github.com/grailbio/samcore/cmd/bio-samtool/cmd"

func main() {
	cmd.Run()
}
