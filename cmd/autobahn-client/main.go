// Command autobahn-client drives the Autobahn Testsuite fuzzing server
// against this module's Conn: it asks the server how many test cases it
// has, runs each one as an echo client, then asks the server to write out
// its reports.
package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	websocket "github.com/coalflow/websocket"
)

var (
	addr     = flag.String("addr", "ws://localhost:9001", "autobahn fuzzing server address")
	testCase = flag.Int("case", -1, "autobahn test case to run, or -1 for all cases")
)

func main() {
	flag.Parse()

	n, err := getCaseCount()
	if err != nil {
		panic(err)
	}

	if *testCase == -1 {
		fmt.Printf("running against all %d cases\n", n)
		for i := 1; i <= n; i++ {
			runTest(i)
		}
	} else {
		if *testCase < 1 || *testCase > n {
			panic(fmt.Errorf("invalid test case %d; min=1 max=%d", *testCase, n))
		}
		fmt.Printf("running against test case %d\n", *testCase)
		runTest(*testCase)
	}

	updateReports()
}

func getCaseCount() (int, error) {
	ctx := context.Background()
	conn, err := websocket.Dial(ctx, *addr+"/getCaseCount")
	if err != nil {
		return 0, err
	}
	defer conn.Close(ctx, websocket.CloseNormal, "")

	msg, err := conn.Recv(ctx)
	if err != nil {
		return 0, err
	}

	n, err := strconv.Atoi(string(msg.Data))
	return n, err
}

func runTest(i int) {
	ctx := context.Background()
	conn, err := websocket.Dial(ctx, fmt.Sprintf("%s/runCase?case=%d&agent=coalflow-websocket", *addr, i))
	if err != nil {
		panic(err)
	}

	for {
		msg, err := conn.Recv(ctx)
		if err != nil {
			fmt.Println("case", i, "finished:", err)
			return
		}

		if err := conn.Send(ctx, msg.Type, msg.Data); err != nil {
			fmt.Println("case", i, "echo failed:", err)
			return
		}
	}
}

func updateReports() {
	fmt.Println("updating reports")
	ctx := context.Background()
	conn, err := websocket.Dial(ctx, *addr+"/updateReports?agent=coalflow-websocket")
	if err != nil {
		panic(err)
	}
	conn.Close(ctx, websocket.CloseNormal, "")
}
