package testing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APITest API 性能测试
type APITest struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAPITest 创建 API 测试
// token 为空时认证接口会以 401 计为成功响应（只测通路，不测业务）
func NewAPITest(baseURL, token string) *APITest {
	return &APITest{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

func (at *APITest) authorize(req *http.Request) {
	if at.token != "" {
		req.Header.Set("Authorization", "Bearer "+at.token)
	}
}

// HealthCheckTest 健康检查测试
func (at *APITest) HealthCheckTest() RequestFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", at.baseURL+"/health", nil)
		if err != nil {
			return err
		}

		resp, err := at.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return nil
	}
}

// OfferListTest 卡券列表测试
func (at *APITest) OfferListTest() RequestFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", at.baseURL+"/offers", nil)
		if err != nil {
			return err
		}
		at.authorize(req)

		resp, err := at.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 401 是预期的（没有认证）
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnauthorized {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return nil
	}
}

// SignupTest 客户注册测试
func (at *APITest) SignupTest() RequestFunc {
	return func(ctx context.Context) error {
		signupData := map[string]string{
			"fullName": fmt.Sprintf("perf-%d", time.Now().UnixNano()),
		}

		jsonData, err := json.Marshal(signupData)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, "POST", at.baseURL+"/customers", bytes.NewBuffer(jsonData))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		at.authorize(req)

		resp, err := at.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 未带令牌时 401 也算通路正常
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnauthorized {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return nil
	}
}

// ScanVerifyTest 扫码校验测试
//
// payload 需要指向运行中系统里的真实客户卡券对，
// 压测关注的是解码 + 匹配 + 进度读取这条只读链路的吞吐。
func (at *APITest) ScanVerifyTest(payload string) RequestFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", at.baseURL+"/scan/verify/"+payload, nil)
		if err != nil {
			return err
		}
		at.authorize(req)

		resp, err := at.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		// 负载失效（400/404）说明测试数据过期，不算服务端故障
		switch resp.StatusCode {
		case http.StatusOK, http.StatusUnauthorized, http.StatusBadRequest, http.StatusNotFound:
			return nil
		default:
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	}
}

// MetricsTest Prometheus 指标端点测试
func (at *APITest) MetricsTest() RequestFunc {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "GET", at.baseURL+"/metrics", nil)
		if err != nil {
			return err
		}

		resp, err := at.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		return nil
	}
}

// RunAPITests 运行 API 性能测试
func (at *APITest) RunAPITests(scanPayload string) {
	fmt.Println("🚀 开始 API 性能测试")
	fmt.Println("================================")

	// 1. 健康检查测试
	fmt.Println("📊 健康检查性能测试")
	healthTest := NewPerformanceTest("health_check", 50, time.Second*30)
	healthTest.AddRequest(at.HealthCheckTest())
	healthResult := healthTest.Run()
	healthResult.PrintResult()

	// 2. 卡券列表测试
	fmt.Println("📊 卡券列表性能测试")
	offerListTest := NewPerformanceTest("offer_list", 20, time.Second*30)
	offerListTest.AddRequest(at.OfferListTest())
	offerListResult := offerListTest.Run()
	offerListResult.PrintResult()

	// 3. 客户注册测试
	fmt.Println("📊 客户注册性能测试")
	signupTest := NewPerformanceTest("signup", 10, time.Second*30)
	signupTest.AddRequest(at.SignupTest())
	signupResult := signupTest.Run()
	signupResult.PrintResult()

	results := []*TestResult{healthResult, offerListResult, signupResult}

	// 4. 扫码校验测试（需要提供真实负载）
	if scanPayload != "" {
		fmt.Println("📊 扫码校验性能测试")
		scanTest := NewPerformanceTest("scan_verify", 30, time.Second*30)
		scanTest.AddRequest(at.ScanVerifyTest(scanPayload))
		scanResult := scanTest.Run()
		scanResult.PrintResult()
		results = append(results, scanResult)
	}

	// 5. 混合负载测试
	fmt.Println("📊 混合负载性能测试")
	mixedTest := NewPerformanceTest("mixed_load", 30, time.Second*60)
	mixedTest.AddRequest(at.HealthCheckTest())
	mixedTest.AddRequest(at.OfferListTest())
	if scanPayload != "" {
		mixedTest.AddRequest(at.ScanVerifyTest(scanPayload))
	}
	mixedResult := mixedTest.Run()
	mixedResult.PrintResult()
	results = append(results, mixedResult)

	// 6. 结果对比
	fmt.Println("📈 测试结果对比")
	CompareResults(results...)

	fmt.Println("================================")
	fmt.Println("✅ API 性能测试完成")
}

// RunLoadTest 运行负载测试
func (at *APITest) RunLoadTest(scanPayload string) {
	fmt.Println("🔄 开始负载测试")
	fmt.Println("================================")

	loadTest := NewLoadTest()

	// 场景1: 低并发长时间测试
	loadTest.AddScenario(LoadScenario{
		Name:        "low_concurrency",
		Concurrency: 10,
		Duration:    time.Minute * 2,
		Requests: []RequestFunc{
			at.HealthCheckTest(),
			at.OfferListTest(),
		},
	})

	// 场景2: 中等并发测试
	requests := []RequestFunc{
		at.HealthCheckTest(),
		at.OfferListTest(),
		at.SignupTest(),
	}
	if scanPayload != "" {
		requests = append(requests, at.ScanVerifyTest(scanPayload))
	}
	loadTest.AddScenario(LoadScenario{
		Name:        "medium_concurrency",
		Concurrency: 50,
		Duration:    time.Minute * 1,
		Requests:    requests,
	})

	// 场景3: 渐进式负载测试
	loadTest.AddScenario(LoadScenario{
		Name:        "ramp_up_test",
		Concurrency: 100,
		Duration:    time.Minute * 3,
		RampUp:      time.Minute * 1,
		Requests: []RequestFunc{
			at.HealthCheckTest(),
			at.OfferListTest(),
		},
	})

	results := loadTest.Run()

	fmt.Println("📈 负载测试结果汇总")
	for _, result := range results {
		fmt.Printf("场景: %-20s | QPS: %-8.2f | P95: %-8v | 错误率: %-6.2f%%\n",
			result.TestName, result.QPS, result.P95, result.ErrorRate*100)
	}

	fmt.Println("================================")
	fmt.Println("✅ 负载测试完成")
}

// RunStressTest 运行压力测试
func (at *APITest) RunStressTest() {
	fmt.Println("💪 开始压力测试")
	fmt.Println("================================")

	stressTest := NewStressTest(200, 20, time.Second*30)
	stressTest.AddRequest(at.HealthCheckTest())
	stressTest.AddRequest(at.OfferListTest())

	results := stressTest.Run()

	fmt.Println("📈 压力测试结果汇总")
	for _, result := range results {
		fmt.Printf("并发: %-4d | QPS: %-8.2f | P95: %-8v | 错误率: %-6.2f%%\n",
			result.Concurrency, result.QPS, result.P95, result.ErrorRate*100)
	}

	fmt.Println("================================")
	fmt.Println("✅ 压力测试完成")
}

// BenchmarkEndpoints 端点基准测试
func (at *APITest) BenchmarkEndpoints() {
	fmt.Println("📊 开始端点基准测试")
	fmt.Println("================================")

	// 健康检查基准测试
	healthBenchmark := NewBenchmarkTest("health_benchmark", func(b *B) {
		b.timer.Start()
		for i := 0; i < b.N; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			at.HealthCheckTest()(ctx)
			cancel()
		}
		b.timer.Stop()
	})
	healthResult := healthBenchmark.Run()
	fmt.Printf("健康检查基准: %v\n", healthResult)

	// 卡券列表基准测试
	offerListBenchmark := NewBenchmarkTest("offer_list_benchmark", func(b *B) {
		b.timer.Start()
		for i := 0; i < b.N; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
			at.OfferListTest()(ctx)
			cancel()
		}
		b.timer.Stop()
	})
	offerListResult := offerListBenchmark.Run()
	fmt.Printf("卡券列表基准: %v\n", offerListResult)

	fmt.Println("================================")
	fmt.Println("✅ 基准测试完成")
}

// TestResponseTime 测试响应时间分布
func (at *APITest) TestResponseTime(scanPayload string) {
	fmt.Println("⏱️ 开始响应时间测试")
	fmt.Println("================================")

	testCases := []struct {
		name    string
		request RequestFunc
		samples int
	}{
		{"health_check", at.HealthCheckTest(), 100},
		{"offer_list", at.OfferListTest(), 50},
		{"metrics", at.MetricsTest(), 30},
	}
	if scanPayload != "" {
		testCases = append(testCases, struct {
			name    string
			request RequestFunc
			samples int
		}{"scan_verify", at.ScanVerifyTest(scanPayload), 50})
	}

	for _, tc := range testCases {
		fmt.Printf("📊 %s 响应时间分布 (%d 样本)\n", tc.name, tc.samples)

		pt := NewPerformanceTest(tc.name+"_response_time", 1, time.Second*30)
		pt.AddRequest(tc.request)

		result := pt.Run()

		fmt.Printf("平均: %v, 最小: %v, 最大: %v\n",
			result.AverageResponseTime, result.MinResponseTime, result.MaxResponseTime)
		fmt.Printf("P50: %v, P95: %v, P99: %v\n", result.P50, result.P95, result.P99)
		fmt.Println()
	}

	fmt.Println("================================")
	fmt.Println("✅ 响应时间测试完成")
}
