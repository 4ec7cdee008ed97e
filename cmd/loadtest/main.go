package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
)

const idempotencyHeader = "idempotency-key"

type loadMode string

const (
	modePlace       loadMode = "place"
	modePlaceReplay loadMode = "place-replay"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	productIDs  []string
	quantity    int64
	customerTag string
	outputPath  string
}

// orderClient — подмножество OrderServiceClient, нужное сценарию.
type orderClient interface {
	PlaceOrder(ctx context.Context, in *grpcsvc.PlaceOrderRequest, opts ...grpc.CallOption) (*grpcsvc.PlaceOrderResponse, error)
	CreateCustomer(ctx context.Context, in *grpcsvc.CreateCustomerRequest, opts ...grpc.CallOption) (*grpcsvc.CreateCustomerResponse, error)
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var (
		cfg         config
		modeValue   string
		productsRaw string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; with -duration only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.IntVar(&cfg.connections, "connections", 20, "number of gRPC client connections")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	fs.StringVar(&modeValue, "mode", string(modePlace), "load mode: place | place-replay")
	fs.StringVar(&productsRaw, "products", "", "comma-separated product ids ordered in every scenario")
	fs.Int64Var(&cfg.quantity, "quantity", 1, "quantity per product line")
	fs.StringVar(&cfg.customerTag, "customer-tag", "load", "prefix of the load-test customer email")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	for _, id := range strings.Split(productsRaw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.productIDs = append(cfg.productIDs, id)
		}
	}

	switch {
	case len(cfg.productIDs) == 0:
		return cfg, errors.New("products are required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modePlace, modePlaceReplay:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	result, err := runLoad(context.Background(), cfg, clients)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test setup failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// runLoad регистрирует одного клиента магазина и гоняет сценарии его заказов
// по общему остатку: лишние заказы должны отклоняться, а не уводить остаток в минус.
func runLoad(ctx context.Context, cfg config, clients []orderClient) (report, error) {
	if len(clients) == 0 {
		return report{}, errors.New("at least one client is required")
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())

	customerID, err := createCustomer(ctx, clients[0], cfg, runID)
	if err != nil {
		return report{}, err
	}

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(client orderClient) {
			defer wg.Done()
			for id := range jobs {
				runScenario(ctx, client, cfg, customerID, id, runID, col)
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt)), nil
}

func createCustomer(ctx context.Context, client orderClient, cfg config, runID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	resp, err := client.CreateCustomer(ctx, &grpcsvc.CreateCustomerRequest{
		Name:  "Load " + runID,
		Email: fmt.Sprintf("%s-%s@loadtest.local", cfg.customerTag, runID),
	})
	if err != nil {
		return "", fmt.Errorf("create customer: %w", err)
	}
	if resp == nil || resp.Customer == nil || resp.Customer.ID == "" {
		return "", errors.New("create customer returned empty id")
	}
	return resp.Customer.ID, nil
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// runScenario оформляет заказ; в режиме place-replay повторяет запрос с тем же ключом
// и проверяет, что вернулся тот же заказ.
func runScenario(ctx context.Context, client orderClient, cfg config, customerID string, index int, runID string, col *collector) {
	start := time.Now()
	code := codes.OK
	defer func() {
		col.record(scenarioMethod, time.Since(start), code)
	}()

	req := &grpcsvc.PlaceOrderRequest{CustomerID: customerID}
	for _, id := range cfg.productIDs {
		req.Items = append(req.Items, grpcsvc.OrderItem{ProductID: id, Quantity: cfg.quantity})
	}
	key := fmt.Sprintf("lt-place-%s-%d", runID, index)

	placed, err := callPlaceOrder(ctx, client, cfg.timeout, req, key, "PlaceOrder", col)
	if err != nil {
		code = grpcCode(err)
		return
	}
	orderID := placedOrderID(placed)
	if orderID == "" {
		code = codes.Internal
		return
	}
	if cfg.mode != modePlaceReplay {
		return
	}

	replayed, err := callPlaceOrder(ctx, client, cfg.timeout, req, key, "PlaceOrderReplay", col)
	if err != nil {
		code = grpcCode(err)
		return
	}
	if placedOrderID(replayed) != orderID {
		code = codes.Internal
	}
}

func callPlaceOrder(
	ctx context.Context,
	client orderClient,
	timeout time.Duration,
	req *grpcsvc.PlaceOrderRequest,
	key, method string,
	col *collector,
) (*grpcsvc.PlaceOrderResponse, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, idempotencyHeader, key)

	resp, err := client.PlaceOrder(ctx, req)
	col.record(method, time.Since(start), grpcCode(err))
	return resp, err
}

func placedOrderID(resp *grpcsvc.PlaceOrderResponse) string {
	if resp == nil || resp.Order == nil {
		return ""
	}
	return resp.Order.ID
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}
