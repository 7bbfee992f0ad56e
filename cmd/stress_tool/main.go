package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"loyalty_wallet/internal/domain/customer/model"
	"loyalty_wallet/internal/pkg/config"
	"loyalty_wallet/pkg/utils"
)

// Config
const (
	BaseURL        = "http://localhost:8080"
	TotalScans     = 500 // 同一张卡并发扫码次数
	StampsRequired = 10  // 攒满所需积点
)

var (
	authToken   string
	testOfferID string
	scanPayload string
	httpClient  *http.Client
)

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 2000
	t.MaxIdleConnsPerHost = 2000
	t.MaxConnsPerHost = 2000
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

func main() {
	businessID := flag.String("business", "00000000-0000-0000-0000-000000000001", "商户 ID（需已存在）")
	flag.Parse()

	// 1. 用服务端同一套密钥签发管理员令牌
	config.LoadConfig()
	token, _, err := utils.GenerateToken("stress-admin", *businessID, model.RoleAdmin)
	if err != nil {
		fmt.Printf("签发令牌失败: %v\n", err)
		return
	}
	authToken = "Bearer " + token

	// 2. 准备卡券、客户和扫码负载
	if !createOffer() || !prepareScanPayload() {
		return
	}

	fmt.Printf("开始压测：同一张卡并发 %d 次扫码 (OfferID: %s)...\n", TotalScans, testOfferID)
	time.Sleep(1 * time.Second)

	// 3. 并发扫码
	var wg sync.WaitGroup
	stamped := 0
	completed := 0
	cooldown := 0
	failed := 0
	var mu sync.Mutex

	start := time.Now()

	for i := 1; i <= TotalScans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome := scanOnce()
			mu.Lock()
			switch outcome {
			case "stamped":
				stamped++
			case "completed":
				completed++
			case "cooldown":
				cooldown++
			default:
				failed++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	duration := time.Since(start)
	qps := float64(TotalScans) / duration.Seconds()

	// 4. 校验最终进度没有超发
	current, max := verifyProgress()

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("总请求数: %d\n", TotalScans)
	fmt.Printf("QPS: %.2f\n", qps)
	fmt.Printf("发出积点: %d\n", stamped)
	fmt.Printf("攒满周期: %d\n", completed)
	fmt.Printf("冷却拒绝: %d\n", cooldown)
	fmt.Printf("其他失败: %d\n", failed)
	fmt.Printf("最终进度: %d / %d\n", current, max)
	if current > max {
		fmt.Println("结果: 进度超发，存在并发漏洞！")
	} else {
		fmt.Println("结果: 进度未超发")
	}
	fmt.Println("--------------------------------------------------")
}

func doJSON(method, url string, payload interface{}) ([]byte, int) {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return respBody, resp.StatusCode
}

func createOffer() bool {
	payload := map[string]interface{}{
		"title":          "压测专用集点卡",
		"stampsRequired": StampsRequired,
	}
	respBody, status := doJSON("POST", BaseURL+"/offers", payload)
	fmt.Printf("创建卡券响应: %s\n", string(respBody))
	if status != 200 {
		return false
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.Data.ID == "" {
		fmt.Printf("解析卡券响应失败: %v\n", err)
		return false
	}
	testOfferID = result.Data.ID
	return true
}

func prepareScanPayload() bool {
	signup := map[string]interface{}{"fullName": fmt.Sprintf("压测客户-%d", time.Now().Unix())}
	respBody, status := doJSON("POST", BaseURL+"/customers", signup)
	if status != 200 {
		fmt.Printf("创建客户失败: %s\n", string(respBody))
		return false
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil || created.Data.ID == "" {
		fmt.Printf("解析客户响应失败: %v\n", err)
		return false
	}

	url := fmt.Sprintf("%s/customers/%s/scan-payload?offerId=%s", BaseURL, created.Data.ID, testOfferID)
	respBody, status = doJSON("GET", url, nil)
	if status != 200 {
		fmt.Printf("获取扫码负载失败: %s\n", string(respBody))
		return false
	}

	var pl struct {
		Data struct {
			Payload string `json:"payload"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &pl); err != nil || pl.Data.Payload == "" {
		fmt.Printf("解析扫码负载失败: %v\n", err)
		return false
	}
	scanPayload = pl.Data.Payload
	return true
}

// scanOnce 返回本次扫码的归类结果
func scanOnce() string {
	url := fmt.Sprintf("%s/scan/progress/%s", BaseURL, scanPayload)
	respBody, status := doJSON("POST", url, nil)
	if status == http.StatusTooManyRequests {
		return "cooldown"
	}
	if status != 200 {
		return "failed"
	}

	var result struct {
		Code int `json:"code"`
		Data struct {
			RewardEarned     bool `json:"rewardEarned"`
			AlreadyCompleted bool `json:"alreadyCompleted"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.Code != 0 {
		return "failed"
	}
	if result.Data.RewardEarned {
		return "completed"
	}
	return "stamped"
}

// verifyProgress 压测后读最终进度
func verifyProgress() (int, int) {
	url := fmt.Sprintf("%s/scan/verify/%s", BaseURL, scanPayload)
	respBody, status := doJSON("GET", url, nil)
	if status != 200 {
		fmt.Printf("校验进度失败: %s\n", string(respBody))
		return 0, 0
	}

	var result struct {
		Data struct {
			Progress struct {
				CurrentStamps int `json:"currentStamps"`
				MaxStamps     int `json:"maxStamps"`
			} `json:"progress"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return 0, 0
	}
	return result.Data.Progress.CurrentStamps, result.Data.Progress.MaxStamps
}
