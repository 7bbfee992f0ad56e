package worker

import (
	"log"
	"sync"
	"time"
)

// RepushTask 一个待补推的 (客户, 卡券) 对
//
// 补推按对进行：同一对下所有平台的卡一起推，和扫码后的同步路径一致。
type RepushTask struct {
	CustomerID string
	OfferID    string
	BusinessID string
	Retry      int // 重试次数
}

// ProcessFunc 由调用方注入的补推逻辑
type ProcessFunc func(task RepushTask) error

// RepushPool 钱包补推工作池
//
// cmd/reconcile 扫出漂移卡后灌进来，固定数量的 worker 消费，
// 失败任务带退避进重试队列，超过最大重试次数进死信日志。
type RepushPool struct {
	TaskQueue  chan RepushTask
	RetryQueue chan RepushTask // 重试队列
	Process    ProcessFunc
	WorkerNum  int
	MaxRetry   int // 最大重试次数

	pending sync.WaitGroup
}

func NewRepushPool(process ProcessFunc, workerNum int, bufferSize int) *RepushPool {
	return &RepushPool{
		TaskQueue:  make(chan RepushTask, bufferSize),
		RetryQueue: make(chan RepushTask, bufferSize/2),
		Process:    process,
		WorkerNum:  workerNum,
		MaxRetry:   3, // 最多重试3次
	}
}

func (p *RepushPool) Start() {
	for i := 0; i < p.WorkerNum; i++ {
		go p.worker(i)
	}
	// 启动重试处理协程
	go p.retryWorker()
	log.Printf("Repush pool started with %d workers", p.WorkerNum)
}

func (p *RepushPool) worker(id int) {
	for task := range p.TaskQueue {
		err := p.Process(task)
		if err == nil {
			p.pending.Done()
			continue
		}

		log.Printf("[Worker %d] Failed to repush (CustomerID: %s, OfferID: %s): %v",
			id, task.CustomerID, task.OfferID, err)

		// 未达到最大重试次数，加入重试队列
		if task.Retry < p.MaxRetry {
			task.Retry++
			select {
			case p.RetryQueue <- task:
				log.Printf("[Worker %d] Task added to retry queue (attempt %d/%d)",
					id, task.Retry, p.MaxRetry)
			default:
				log.Printf("[Worker %d] Retry queue full, task dropped: %+v", id, task)
				p.logFailedTask(task, err)
				p.pending.Done()
			}
		} else {
			log.Printf("[Worker %d] Task exceeded max retries, dropped: %+v", id, task)
			p.logFailedTask(task, err)
			p.pending.Done()
		}
	}
}

func (p *RepushPool) retryWorker() {
	for task := range p.RetryQueue {
		// 延迟重试，避免立即重试
		time.Sleep(time.Duration(task.Retry) * time.Second)

		// 重新加入主队列
		select {
		case p.TaskQueue <- task:
			log.Printf("[RetryWorker] Task re-queued (attempt %d/%d)", task.Retry, p.MaxRetry)
		default:
			log.Printf("[RetryWorker] Main queue full, task dropped: %+v", task)
			p.logFailedTask(task, nil)
			p.pending.Done()
		}
	}
}

func (p *RepushPool) logFailedTask(task RepushTask, err error) {
	// 死信只落日志，运营按客户和卡券手动补推
	log.Printf("[DeadLetter] Repush failed permanently: CustomerID=%s, OfferID=%s, Error=%v",
		task.CustomerID, task.OfferID, err)
}

// AddTask 任务入队，队列满则直接进死信
func (p *RepushPool) AddTask(task RepushTask) {
	p.pending.Add(1)
	select {
	case p.TaskQueue <- task:
		// 任务入队成功
	default:
		log.Printf("Repush pool queue full, dropping task: %+v", task)
		p.logFailedTask(task, nil)
		p.pending.Done()
	}
}

// Wait 阻塞到所有已入队任务终结（成功或进死信）
func (p *RepushPool) Wait() {
	p.pending.Wait()
}
