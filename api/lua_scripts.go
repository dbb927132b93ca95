package api

import "github.com/redis/go-redis/v9"

// PlaceBidScript 在單一原子操作中記錄出價並維護最高出價快取
//
//	KEYS[1] - 刊登的最高出價鍵
//	KEYS[2] - 出價 stream
//	ARGV[1] - 出價金額
//	ARGV[2] - 序列化後的出價內容
//	ARGV[3] - 最高出價鍵的過期秒數
//
// 返回值:
//
//	 1 - 出價已記錄且成為新的最高出價
//	 0 - 出價已記錄但沒有超過目前最高價
//	-1 - 最高出價鍵不存在，呼叫端要先從資料庫回填再重試
//
// 每筆出價都會寫進 stream，最高出價鍵只是給通知和快取用，
// 不影響出價紀錄本身的保存
var PlaceBidScript = redis.NewScript(`
local top = redis.call('GET', KEYS[1])
if top == false then
    return -1
end

local new_bid = tonumber(ARGV[1])
local is_top = 0
if new_bid > tonumber(top) then
    redis.call('SET', KEYS[1], ARGV[1], 'EX', tonumber(ARGV[3]))
    is_top = 1
end

redis.call('XADD', KEYS[2], '*', 'payload', ARGV[2])

return is_top
`)
